package sale

import (
	"fmt"
	"math/big"
)

// Vault owns the deferred-claim balances for sales settled after end. The
// engine decides when a claim is legal; the vault guards the accounting
// invariant TotalClaimed <= TotalAccrued.
type Vault struct {
	store Storage
}

// NewVault binds a claim vault to the provided storage.
func NewVault(store Storage) *Vault {
	return &Vault{store: store}
}

func (v *Vault) claimants(saleType string) *AddressSet {
	return NewAddressSet(v.store, claimantsPrefix+saleType)
}

type storedClaimable struct {
	TotalAccrued *big.Int
	TotalClaimed *big.Int
}

// Claimable loads the balance for a (user, saleType) pair. Missing entries
// read as zero.
func (v *Vault) Claimable(user [20]byte, saleType string) (*Claimable, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	stored := new(storedClaimable)
	ok, err := v.store.KVGet(claimKey(normalized, user), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Claimable{TotalAccrued: big.NewInt(0), TotalClaimed: big.NewInt(0)}, nil
	}
	return &Claimable{
		TotalAccrued: cloneBigInt(stored.TotalAccrued),
		TotalClaimed: cloneBigInt(stored.TotalClaimed),
	}, nil
}

// Accrue adds amount to the user's total for the sale type and registers the
// user in the pending-claimant set. Upstream checks (sale quantity) already
// bound the amount.
func (v *Vault) Accrue(user [20]byte, saleType string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("sale: accrual amount must be positive")
	}
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return err
	}
	claim, err := v.Claimable(user, normalized)
	if err != nil {
		return err
	}
	claim.TotalAccrued = new(big.Int).Add(claim.TotalAccrued, amount)
	if err := v.write(user, normalized, claim); err != nil {
		return err
	}
	return v.claimants(normalized).Add(user)
}

// MarkClaimed settles the entire outstanding balance, returning the delta that
// must be paid out. The user is removed from the pending-claimant set. Fails
// with ErrNothingToClaim when nothing is outstanding.
func (v *Vault) MarkClaimed(user [20]byte, saleType string) (*big.Int, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	claim, err := v.Claimable(user, normalized)
	if err != nil {
		return nil, err
	}
	delta := claim.Outstanding()
	if delta.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	claim.TotalClaimed = cloneBigInt(claim.TotalAccrued)
	if err := v.write(user, normalized, claim); err != nil {
		return nil, err
	}
	if err := v.claimants(normalized).Remove(user); err != nil {
		return nil, err
	}
	return delta, nil
}

// PendingClaimantCount reports the number of users with an outstanding balance
// for the sale type.
func (v *Vault) PendingClaimantCount(saleType string) (uint64, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return 0, err
	}
	return v.claimants(normalized).Len()
}

func (v *Vault) write(user [20]byte, saleType string, claim *Claimable) error {
	stored := &storedClaimable{
		TotalAccrued: cloneBigInt(claim.TotalAccrued),
		TotalClaimed: cloneBigInt(claim.TotalClaimed),
	}
	return v.store.KVPut(claimKey(saleType, user), stored)
}
