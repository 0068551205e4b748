package referral

import (
	"fmt"
	"math/big"

	"github.com/rakshitdev007/remix-contracts/native/common"
)

// Storage abstracts the subset of state manager functionality the referral
// ledger requires.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// SaleInfo is the sale-registry collaborator the ledger consults when
// deciding a reward's payout policy and a pending claim's eligibility.
type SaleInfo interface {
	// PayoutDeferred reports whether rewards for the sale type park as
	// pending until the sale ends.
	PayoutDeferred(saleType string) (bool, error)
	// SaleEndsAt returns the sale's end timestamp.
	SaleEndsAt(saleType string) (int64, error)
}

const (
	edgePrefix      = "ref/edge/"
	settledPrefix   = "ref/settled/"
	pendingPrefix   = "ref/pending/"
	configKeyString = "ref/config"
)

func edgeKey(user [20]byte) []byte {
	return append([]byte(edgePrefix), user[:]...)
}

func settledKey(referrer [20]byte) []byte {
	return append([]byte(settledPrefix), referrer[:]...)
}

func pendingKey(referrer [20]byte, saleType string) []byte {
	key := append([]byte(pendingPrefix), referrer[:]...)
	key = append(key, '/')
	return append(key, []byte(saleType)...)
}

type storedConfig struct {
	RewardPercent uint64
	Allocation    *big.Int
	Distributed   *big.Int
}

// Distribution describes the outcome of a reward decision.
type Distribution struct {
	Referrer [20]byte
	Amount   *big.Int
	Deferred bool
}

// Ledger owns the referrer graph, the global reward pool and the pending and
// settled reward balances. Payouts go through the injected custody; policy
// and end-time checks go through the sale collaborator.
type Ledger struct {
	store   Storage
	custody common.TokenCustody
	token   string
	sales   SaleInfo
}

// NewLedger constructs a referral ledger paying rewards in the given token.
func NewLedger(store Storage, custody common.TokenCustody, token string, sales SaleInfo) *Ledger {
	return &Ledger{store: store, custody: custody, token: token, sales: sales}
}

func (l *Ledger) config() (*storedConfig, error) {
	cfg := new(storedConfig)
	ok, err := l.store.KVGet([]byte(configKeyString), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &storedConfig{Allocation: big.NewInt(0), Distributed: big.NewInt(0)}, nil
	}
	if cfg.Allocation == nil {
		cfg.Allocation = big.NewInt(0)
	}
	if cfg.Distributed == nil {
		cfg.Distributed = big.NewInt(0)
	}
	return cfg, nil
}

func (l *Ledger) writeConfig(cfg *storedConfig) error {
	return l.store.KVPut([]byte(configKeyString), cfg)
}

// SetRewardPercent updates the reward percentage applied to purchase volumes.
func (l *Ledger) SetRewardPercent(percent uint64) error {
	if percent > 100 {
		return ErrInvalidPercent
	}
	cfg, err := l.config()
	if err != nil {
		return err
	}
	cfg.RewardPercent = percent
	return l.writeConfig(cfg)
}

// RewardPercent reports the configured reward percentage.
func (l *Ledger) RewardPercent() (uint64, error) {
	cfg, err := l.config()
	if err != nil {
		return 0, err
	}
	return cfg.RewardPercent, nil
}

// FundAllocation grows the global reward pool.
func (l *Ledger) FundAllocation(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("referral: allocation amount must be positive")
	}
	cfg, err := l.config()
	if err != nil {
		return err
	}
	cfg.Allocation = new(big.Int).Add(cfg.Allocation, amount)
	return l.writeConfig(cfg)
}

// Allocation reports the remaining pool and the running distributed total.
func (l *Ledger) Allocation() (remaining, distributed *big.Int, err error) {
	cfg, err := l.config()
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(cfg.Allocation), new(big.Int).Set(cfg.Distributed), nil
}

// AddReferral links user to referrer. The first write wins: linking an
// already-linked user is a silent no-op, reported via the returned bool so
// callers can decide whether to emit a linkage event.
func (l *Ledger) AddReferral(user, referrer [20]byte) (bool, error) {
	var zero [20]byte
	if user == zero || referrer == zero {
		return false, ErrZeroAddress
	}
	if user == referrer {
		return false, ErrSelfReferral
	}
	var existing [20]byte
	ok, err := l.store.KVGet(edgeKey(user), &existing)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := l.store.KVPut(edgeKey(user), referrer); err != nil {
		return false, err
	}
	return true, nil
}

// ReferrerOf returns the recorded referrer for a user, if any.
func (l *Ledger) ReferrerOf(user [20]byte) ([20]byte, bool, error) {
	var referrer [20]byte
	ok, err := l.store.KVGet(edgeKey(user), &referrer)
	if err != nil {
		return referrer, false, err
	}
	return referrer, ok, nil
}

// DistributeReward computes and books the referral reward for a purchase.
// Returns nil when the buyer has no referrer or the computed reward rounds to
// zero. The global pool is decremented at distribution-decision time for both
// the immediate and the deferred branch.
func (l *Ledger) DistributeReward(buyer [20]byte, tokenVolume *big.Int, saleType string) (*Distribution, error) {
	referrer, linked, err := l.ReferrerOf(buyer)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, nil
	}
	cfg, err := l.config()
	if err != nil {
		return nil, err
	}
	if cfg.RewardPercent == 0 || tokenVolume == nil || tokenVolume.Sign() <= 0 {
		return nil, nil
	}
	reward := new(big.Int).Mul(tokenVolume, new(big.Int).SetUint64(cfg.RewardPercent))
	reward.Quo(reward, big.NewInt(100))
	if reward.Sign() == 0 {
		return nil, nil
	}
	if reward.Cmp(cfg.Allocation) > 0 {
		return nil, ErrInsufficientAllocation
	}
	cfg.Allocation = new(big.Int).Sub(cfg.Allocation, reward)
	cfg.Distributed = new(big.Int).Add(cfg.Distributed, reward)
	if err := l.writeConfig(cfg); err != nil {
		return nil, err
	}

	deferred, err := l.sales.PayoutDeferred(saleType)
	if err != nil {
		return nil, err
	}
	dist := &Distribution{Referrer: referrer, Amount: reward, Deferred: deferred}
	if deferred {
		pending, err := l.PendingBalance(referrer, saleType)
		if err != nil {
			return nil, err
		}
		if err := l.store.KVPut(pendingKey(referrer, saleType), new(big.Int).Add(pending, reward)); err != nil {
			return nil, err
		}
		return dist, nil
	}
	if err := l.creditSettled(referrer, reward); err != nil {
		return nil, err
	}
	if err := l.custody.Push(referrer, l.token, reward); err != nil {
		return nil, err
	}
	return dist, nil
}

// PendingBalance reports the deferred reward balance for a (referrer,
// saleType) pair.
func (l *Ledger) PendingBalance(referrer [20]byte, saleType string) (*big.Int, error) {
	pending := new(big.Int)
	ok, err := l.store.KVGet(pendingKey(referrer, saleType), pending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return pending, nil
}

// SettledTotal reports the lifetime settled reward total for a referrer.
func (l *Ledger) SettledTotal(referrer [20]byte) (*big.Int, error) {
	settled := new(big.Int)
	ok, err := l.store.KVGet(settledKey(referrer), settled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return settled, nil
}

// ClaimPending settles a deferred reward balance once the referenced sale has
// ended. State is final before the custody payout.
func (l *Ledger) ClaimPending(referrer [20]byte, saleType string, now int64) (*big.Int, error) {
	pending, err := l.PendingBalance(referrer, saleType)
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return nil, ErrNothingPending
	}
	endAt, err := l.sales.SaleEndsAt(saleType)
	if err != nil {
		return nil, err
	}
	if now <= endAt {
		return nil, ErrSaleNotEndedYet
	}
	if err := l.store.KVPut(pendingKey(referrer, saleType), big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := l.creditSettled(referrer, pending); err != nil {
		return nil, err
	}
	if err := l.custody.Push(referrer, l.token, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (l *Ledger) creditSettled(referrer [20]byte, amount *big.Int) error {
	settled, err := l.SettledTotal(referrer)
	if err != nil {
		return err
	}
	return l.store.KVPut(settledKey(referrer), new(big.Int).Add(settled, amount))
}
