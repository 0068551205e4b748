package sale

import (
	"math/big"

	coreevents "github.com/rakshitdev007/remix-contracts/core/events"
	"github.com/rakshitdev007/remix-contracts/native/referral"
	"github.com/rakshitdev007/remix-contracts/native/stake"
)

// --- referral administration ---

// SetReferralPercent updates the reward percentage applied to future
// purchases. Owner only.
func (e *Engine) SetReferralPercent(caller [20]byte, percent uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.referral.SetRewardPercent(percent); err != nil {
		return err
	}
	return scope.tx.Commit()
}

// ReferralPercent reports the configured reward percentage.
func (e *Engine) ReferralPercent() (uint64, error) {
	scope, err := e.readScope()
	if err != nil {
		return 0, err
	}
	return scope.referral.RewardPercent()
}

// FundReferralAllocation tops up the referral reward pool, pulling sale
// tokens from the caller into referral custody. Owner only.
func (e *Engine) FundReferralAllocation(caller [20]byte, amount *big.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.referral.FundAllocation(amount); err != nil {
		return err
	}
	if err := scope.refCustody.Pull(caller, scope.meta.SaleToken, amount); err != nil {
		return err
	}
	return scope.tx.Commit()
}

// ReferralAllocation reports the remaining pool and the lifetime distributed
// total.
func (e *Engine) ReferralAllocation() (remaining, distributed *big.Int, err error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, nil, err
	}
	return scope.referral.Allocation()
}

// AddReferralHandler grants an address the right to register referral edges
// directly. Owner only.
func (e *Engine) AddReferralHandler(caller, handler [20]byte) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	var zero [20]byte
	if handler == zero {
		return ErrZeroAddress
	}
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.tx.SetRole(referralHandlerRole, handler[:]); err != nil {
		return err
	}
	return scope.tx.Commit()
}

// RemoveReferralHandler revokes direct referral registration rights. Owner
// only.
func (e *Engine) RemoveReferralHandler(caller, handler [20]byte) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.tx.UnsetRole(referralHandlerRole, handler[:]); err != nil {
		return err
	}
	return scope.tx.Commit()
}

// IsReferralHandler reports whether an address holds the handler role.
func (e *Engine) IsReferralHandler(addr [20]byte) bool {
	return e.mgr.HasRole(referralHandlerRole, addr[:])
}

// AddReferral registers a referral edge on behalf of a user. Callable by the
// owner or a registered handler; the first registration for a user wins and
// later calls are silent no-ops.
func (e *Engine) AddReferral(caller, user, referrer [20]byte) (bool, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return false, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return false, err
	}
	if caller != scope.meta.Owner && !scope.tx.HasRole(referralHandlerRole, caller[:]) {
		return false, ErrNotAuthorized
	}
	linked, err := scope.referral.AddReferral(user, referrer)
	if err != nil {
		return false, err
	}
	if err := scope.tx.Commit(); err != nil {
		return false, err
	}
	if linked {
		e.emitAll([]coreevents.Event{coreevents.ReferralLinked{User: user, Referrer: referrer}})
	}
	return linked, nil
}

// ReferrerOf reports the registered referrer for a user, if any.
func (e *Engine) ReferrerOf(user [20]byte) ([20]byte, bool, error) {
	scope, err := e.readScope()
	if err != nil {
		return [20]byte{}, false, err
	}
	return scope.referral.ReferrerOf(user)
}

// ReferralPendingBalance reports the unsettled reward balance a referrer
// holds for one sale type.
func (e *Engine) ReferralPendingBalance(referrer [20]byte, saleType string) (*big.Int, error) {
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.referral.PendingBalance(referrer, normalized)
}

// ReferralSettledTotal reports the lifetime settled reward total for a
// referrer.
func (e *Engine) ReferralSettledTotal(referrer [20]byte) (*big.Int, error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.referral.SettledTotal(referrer)
}

// ClaimReferralPending settles a referrer's entire pending balance for a sale
// type once that sale has ended.
func (e *Engine) ClaimReferralPending(referrer [20]byte, saleType string) (*big.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	normalized, err := NormalizeSaleType(saleType)
	if err != nil {
		return nil, err
	}
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	amount, err := scope.referral.ClaimPending(referrer, normalized, e.now())
	if err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.ReferralRewardPaid{
		Referrer: referrer,
		SaleType: normalized,
		Amount:   amount,
	}})
	return amount, nil
}

// --- staking ---

// SetStakeParams configures the APY and duration bounds applied to new
// positions. Owner only.
func (e *Engine) SetStakeParams(caller [20]byte, aprBps, minSeconds, maxSeconds uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.stake.SetParams(aprBps, minSeconds, maxSeconds); err != nil {
		return err
	}
	return scope.tx.Commit()
}

// StakeParams reports the current staking parameters.
func (e *Engine) StakeParams() (*stake.Params, error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.stake.Params()
}

// SetStakePaused toggles the deposit lock. Owner only.
func (e *Engine) SetStakePaused(caller [20]byte, paused bool) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return err
	}
	if err := scope.stake.SetPaused(paused); err != nil {
		return err
	}
	if err := scope.tx.Commit(); err != nil {
		return err
	}
	e.emitAll([]coreevents.Event{coreevents.StakePauseChanged{Paused: paused}})
	return nil
}

// StakeDeposit opens a position funded from the caller's own balance.
func (e *Engine) StakeDeposit(caller [20]byte, amount *big.Int) (uint64, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return 0, translateGuardErr(err)
	}
	defer release()
	now := e.now()
	scope, err := e.begin()
	if err != nil {
		return 0, err
	}
	index, err := scope.stake.Deposit(caller, caller, amount, now)
	if err != nil {
		return 0, err
	}
	position, err := scope.stake.Position(caller, index)
	if err != nil {
		return 0, err
	}
	if err := scope.tx.Commit(); err != nil {
		return 0, err
	}
	e.emitAll([]coreevents.Event{coreevents.StakeCreated{
		Owner:     caller,
		Payer:     caller,
		Index:     index,
		Principal: position.Principal,
		AprBps:    position.AprBps,
		StartTime: position.StartTime,
	}})
	return index, nil
}

// StakeClaimReward pays out the rewards accrued so far on one position.
func (e *Engine) StakeClaimReward(caller [20]byte, index uint64) (*big.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	amount, err := scope.stake.ClaimReward(caller, index, e.now())
	if err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.StakeRewardClaimed{
		Owner:  caller,
		Index:  index,
		Amount: amount,
	}})
	return amount, nil
}

// StakeUnstake closes a position, paying out principal plus the final reward.
func (e *Engine) StakeUnstake(caller [20]byte, index uint64) (principal, reward *big.Int, err error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, nil, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return nil, nil, err
	}
	principal, reward, err = scope.stake.Unstake(caller, index, e.now())
	if err != nil {
		return nil, nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.StakeUnstaked{
		Owner:     caller,
		Index:     index,
		Principal: principal,
		Reward:    reward,
	}})
	return principal, reward, nil
}

// StakeWithdrawExcess sweeps custody funds above the staked principal total.
// Owner only.
func (e *Engine) StakeWithdrawExcess(caller, to [20]byte) (*big.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	var zero [20]byte
	if to == zero {
		return nil, ErrZeroAddress
	}
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return nil, err
	}
	amount, err := scope.stake.WithdrawExcess(to)
	if err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	return amount, nil
}

// StakePositions lists all positions for an owner, open and closed.
func (e *Engine) StakePositions(owner [20]byte) ([]*stake.Position, error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.stake.Positions(owner)
}

// StakePendingReward reports the claimable reward on one position.
func (e *Engine) StakePendingReward(owner [20]byte, index uint64) (*big.Int, error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.stake.PendingReward(owner, index, e.now())
}

// TotalStaked reports the sum of all active principals.
func (e *Engine) TotalStaked() (*big.Int, error) {
	scope, err := e.readScope()
	if err != nil {
		return nil, err
	}
	return scope.stake.TotalStaked()
}

// readScope builds component views over the live manager without opening a
// transaction. Callers must not mutate through it.
func (e *Engine) readScope() (*txScope, error) {
	meta, err := loadMeta(e.mgr)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry(e.mgr)
	refCustody := e.custodyFn(e.mgr, meta.ReferralVault)
	stakeFunds := e.custodyFn(e.mgr, meta.StakeVault)
	return &txScope{
		meta:     meta,
		registry: registry,
		referral: referral.NewLedger(e.mgr, refCustody, meta.SaleToken, saleInfoAdapter{reg: registry}),
		stake:    stake.NewEngine(e.mgr, stakeFunds, meta.SaleToken),
	}, nil
}
