package common

import "math/big"

// TokenCustody abstracts the token transfer primitive the engines settle
// through. Pull moves funds from an external account into the engine's
// custody, Push pays out of custody, and BalanceOf reports the custodied
// balance for a token. Push is always the last step of an operation so ledger
// state is final before any external interaction.
type TokenCustody interface {
	Pull(from [20]byte, token string, amount *big.Int) error
	Push(to [20]byte, token string, amount *big.Int) error
	BalanceOf(token string) (*big.Int, error)
}

// ComplianceOracle gates outbound settlement transfers. Implementations may
// consult KYC or legal-asset registries; the engines only see the verdict.
type ComplianceOracle interface {
	IsEligible(addr [20]byte) bool
}

// AllowAll is the default compliance wiring used when no registry is
// configured.
type AllowAll struct{}

// IsEligible implements the ComplianceOracle interface.
func (AllowAll) IsEligible([20]byte) bool { return true }
