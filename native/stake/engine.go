package stake

import (
	"fmt"
	"math/big"

	"github.com/rakshitdev007/remix-contracts/native/common"
)

// Storage abstracts the subset of state manager functionality the stake
// engine requires.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

const (
	paramsKeyString = "stake/params"
	totalKeyString  = "stake/total"
	positionsPrefix = "stake/positions/"
)

func positionsKey(owner [20]byte) []byte {
	return append([]byte(positionsPrefix), owner[:]...)
}

// Engine owns the stake positions and the linear reward accrual. All payouts
// happen after state is final; external transfer ordering is guaranteed by
// the caller's transaction scope.
type Engine struct {
	store   Storage
	custody common.TokenCustody
	token   string
}

// NewEngine constructs a stake engine custodying the given token.
func NewEngine(store Storage, custody common.TokenCustody, token string) *Engine {
	return &Engine{store: store, custody: custody, token: token}
}

// Params loads the global staking parameters.
func (e *Engine) Params() (*Params, error) {
	params := new(Params)
	ok, err := e.store.KVGet([]byte(paramsKeyString), params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Params{}, nil
	}
	return params, nil
}

// SetParams updates the APR and duration bounds. Rate changes never affect
// existing positions.
func (e *Engine) SetParams(aprBps, minSeconds, maxSeconds uint64) error {
	if maxSeconds == 0 || minSeconds > maxSeconds {
		return ErrInvalidParams
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.AprBps = aprBps
	params.MinStakeSeconds = minSeconds
	params.MaxStakeSeconds = maxSeconds
	return e.store.KVPut([]byte(paramsKeyString), params)
}

// SetPaused toggles the global staking lock.
func (e *Engine) SetPaused(paused bool) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.Paused = paused
	return e.store.KVPut([]byte(paramsKeyString), params)
}

// TotalStaked reports the sum of all active principals.
func (e *Engine) TotalStaked() (*big.Int, error) {
	total := new(big.Int)
	ok, err := e.store.KVGet([]byte(totalKeyString), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (e *Engine) writeTotal(total *big.Int) error {
	return e.store.KVPut([]byte(totalKeyString), total)
}

func (e *Engine) loadPositions(owner [20]byte) ([]*storedPosition, error) {
	var stored []*storedPosition
	ok, err := e.store.KVGet(positionsKey(owner), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*storedPosition{}, nil
	}
	return stored, nil
}

func (e *Engine) writePositions(owner [20]byte, stored []*storedPosition) error {
	return e.store.KVPut(positionsKey(owner), stored)
}

// Positions returns all positions for an owner, open and closed.
func (e *Engine) Positions(owner [20]byte) ([]*Position, error) {
	stored, err := e.loadPositions(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*Position, 0, len(stored))
	for _, s := range stored {
		out = append(out, s.toPosition())
	}
	return out, nil
}

// Position returns a single position by index.
func (e *Engine) Position(owner [20]byte, index uint64) (*Position, error) {
	stored, err := e.loadPositions(owner)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(stored)) {
		return nil, ErrPositionNotFound
	}
	return stored[index].toPosition(), nil
}

// Deposit opens a new position for beneficiary, pulling the principal from
// payer. The APR is frozen at the current global rate. Returns the new
// position's index.
func (e *Engine) Deposit(beneficiary, payer [20]byte, amount *big.Int, now int64) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	params, err := e.Params()
	if err != nil {
		return 0, err
	}
	if params.Paused {
		return 0, ErrStakingPaused
	}
	stored, err := e.loadPositions(beneficiary)
	if err != nil {
		return 0, err
	}
	position := &Position{
		Principal:      new(big.Int).Set(amount),
		StartTime:      now,
		ClaimedRewards: big.NewInt(0),
		Active:         true,
		AprBps:         params.AprBps,
		DepositedBy:    payer,
	}
	index := uint64(len(stored))
	stored = append(stored, position.toStored())
	if err := e.writePositions(beneficiary, stored); err != nil {
		return 0, err
	}
	total, err := e.TotalStaked()
	if err != nil {
		return 0, err
	}
	if err := e.writeTotal(new(big.Int).Add(total, amount)); err != nil {
		return 0, err
	}
	if err := e.custody.Pull(payer, e.token, amount); err != nil {
		return 0, err
	}
	return index, nil
}

// pendingOf computes the unpaid reward for a stored position. Elapsed time is
// capped at the configured maximum stake duration.
func (e *Engine) pendingOf(s *storedPosition, maxSeconds uint64, now int64) *big.Int {
	if s == nil || !s.Active {
		return big.NewInt(0)
	}
	var elapsed uint64
	if now > int64(s.StartTime) {
		elapsed = uint64(now) - s.StartTime
	}
	if maxSeconds > 0 && elapsed > maxSeconds {
		elapsed = maxSeconds
	}
	reward := new(big.Int).Mul(cloneBigInt(s.Principal), new(big.Int).SetUint64(elapsed))
	reward.Mul(reward, new(big.Int).SetUint64(s.AprBps))
	denom := new(big.Int).Mul(new(big.Int).SetUint64(YearSeconds), new(big.Int).SetUint64(BpsDenominator))
	reward.Quo(reward, denom)
	reward.Sub(reward, cloneBigInt(s.ClaimedRewards))
	if reward.Sign() < 0 {
		return big.NewInt(0)
	}
	return reward
}

// PendingReward reports the claimable reward for a position. Closed positions
// always report zero.
func (e *Engine) PendingReward(owner [20]byte, index uint64, now int64) (*big.Int, error) {
	stored, err := e.loadPositions(owner)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(stored)) {
		return nil, ErrPositionNotFound
	}
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	return e.pendingOf(stored[index], params.MaxStakeSeconds, now), nil
}

// ClaimReward pays out the accrued reward without closing the position.
// ClaimedRewards only ever increases.
func (e *Engine) ClaimReward(owner [20]byte, index uint64, now int64) (*big.Int, error) {
	stored, err := e.loadPositions(owner)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(stored)) {
		return nil, ErrPositionNotFound
	}
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	pending := e.pendingOf(stored[index], params.MaxStakeSeconds, now)
	if pending.Sign() == 0 {
		return nil, ErrNoRewardsYet
	}
	stored[index].ClaimedRewards = new(big.Int).Add(cloneBigInt(stored[index].ClaimedRewards), pending)
	if err := e.writePositions(owner, stored); err != nil {
		return nil, err
	}
	if err := e.custody.Push(owner, e.token, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// Unstake closes a position after the minimum duration, paying principal plus
// final reward in one transfer. Closed positions stay closed.
func (e *Engine) Unstake(owner [20]byte, index uint64, now int64) (principal, reward *big.Int, err error) {
	stored, err := e.loadPositions(owner)
	if err != nil {
		return nil, nil, err
	}
	if index >= uint64(len(stored)) {
		return nil, nil, ErrPositionNotFound
	}
	position := stored[index]
	if !position.Active {
		return nil, nil, ErrPositionClosed
	}
	params, err := e.Params()
	if err != nil {
		return nil, nil, err
	}
	if now < int64(position.StartTime)+int64(params.MinStakeSeconds) {
		return nil, nil, ErrMinDurationNotMet
	}
	reward = e.pendingOf(position, params.MaxStakeSeconds, now)
	principal = cloneBigInt(position.Principal)

	position.Active = false
	position.ClaimedRewards = new(big.Int).Add(cloneBigInt(position.ClaimedRewards), reward)
	if err := e.writePositions(owner, stored); err != nil {
		return nil, nil, err
	}
	total, err := e.TotalStaked()
	if err != nil {
		return nil, nil, err
	}
	total = new(big.Int).Sub(total, principal)
	if total.Sign() < 0 {
		return nil, nil, fmt.Errorf("stake: total staked underflow")
	}
	if err := e.writeTotal(total); err != nil {
		return nil, nil, err
	}
	payout := new(big.Int).Add(principal, reward)
	if err := e.custody.Push(owner, e.token, payout); err != nil {
		return nil, nil, err
	}
	return principal, reward, nil
}

// WithdrawExcess pays out the custodied balance exceeding the total staked
// principal. Staked principal can never be swept.
func (e *Engine) WithdrawExcess(to [20]byte) (*big.Int, error) {
	balance, err := e.custody.BalanceOf(e.token)
	if err != nil {
		return nil, err
	}
	total, err := e.TotalStaked()
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(balance, total)
	if excess.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.custody.Push(to, e.token, excess); err != nil {
		return nil, err
	}
	return excess, nil
}
