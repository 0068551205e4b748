package sale

import (
	"fmt"
	"math/big"

	"github.com/rakshitdev007/remix-contracts/native/common"
)

// BalanceState is the token balance table custody operates on.
type BalanceState interface {
	Transfer(from, to []byte, symbol string, amount *big.Int) error
	Balance(addr []byte, symbol string) (*big.Int, error)
}

// LedgerCustody implements common.TokenCustody over the state manager's
// balance table, holding funds under a per-module vault address. Outbound
// pushes are gated by the compliance oracle.
type LedgerCustody struct {
	state      BalanceState
	vault      [20]byte
	compliance common.ComplianceOracle
}

// NewLedgerCustody binds a custody vault to the provided balance state.
func NewLedgerCustody(state BalanceState, vault [20]byte, compliance common.ComplianceOracle) *LedgerCustody {
	if compliance == nil {
		compliance = common.AllowAll{}
	}
	return &LedgerCustody{state: state, vault: vault, compliance: compliance}
}

// Vault returns the custody's vault address.
func (c *LedgerCustody) Vault() [20]byte { return c.vault }

// Pull moves amount from an external account into custody.
func (c *LedgerCustody) Pull(from [20]byte, token string, amount *big.Int) error {
	if err := c.state.Transfer(from[:], c.vault[:], token, amount); err != nil {
		return fmt.Errorf("sale: custody pull: %w", err)
	}
	return nil
}

// Push pays amount out of custody. The recipient must pass the compliance
// check; ineligible recipients fail the enclosing operation.
func (c *LedgerCustody) Push(to [20]byte, token string, amount *big.Int) error {
	if !c.compliance.IsEligible(to) {
		return ErrIdentityRequired
	}
	if err := c.state.Transfer(c.vault[:], to[:], token, amount); err != nil {
		return fmt.Errorf("sale: custody push: %w", err)
	}
	return nil
}

// BalanceOf reports the custodied balance for a token.
func (c *LedgerCustody) BalanceOf(token string) (*big.Int, error) {
	return c.state.Balance(c.vault[:], token)
}
