package stake

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// mockCustody tracks a single vault balance so withdraw-excess arithmetic can
// be asserted without a full state manager.
type mockCustody struct {
	balance *big.Int
}

func newMockCustody() *mockCustody {
	return &mockCustody{balance: big.NewInt(0)}
}

func (m *mockCustody) Pull(_ [20]byte, _ string, amount *big.Int) error {
	m.balance = new(big.Int).Add(m.balance, amount)
	return nil
}

func (m *mockCustody) Push(_ [20]byte, _ string, amount *big.Int) error {
	if m.balance.Cmp(amount) < 0 {
		return errors.New("custody underfunded")
	}
	m.balance = new(big.Int).Sub(m.balance, amount)
	return nil
}

func (m *mockCustody) BalanceOf(string) (*big.Int, error) {
	return new(big.Int).Set(m.balance), nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestEngine(t *testing.T) (*Engine, *mockCustody) {
	t.Helper()
	custody := newMockCustody()
	engine := NewEngine(newMockStorage(), custody, "RMX")
	if err := engine.SetParams(1000, 100, YearSeconds); err != nil {
		t.Fatalf("set params: %v", err)
	}
	return engine, custody
}

func TestSetParamsValidation(t *testing.T) {
	engine := NewEngine(newMockStorage(), newMockCustody(), "RMX")
	if err := engine.SetParams(1000, 0, 0); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for zero max, got %v", err)
	}
	if err := engine.SetParams(1000, 200, 100); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for min>max, got %v", err)
	}
	if err := engine.SetParams(1000, 100, YearSeconds); err != nil {
		t.Fatalf("set params: %v", err)
	}
	params, err := engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.AprBps != 1000 || params.MinStakeSeconds != 100 || params.MaxStakeSeconds != YearSeconds {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestDepositValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	owner := addr(1)

	if _, err := engine.Deposit(owner, owner, big.NewInt(0), 100); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := engine.Deposit(owner, owner, nil, 100); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
	}
	if err := engine.SetPaused(true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := engine.Deposit(owner, owner, e18(1), 100); !errors.Is(err, ErrStakingPaused) {
		t.Fatalf("expected ErrStakingPaused, got %v", err)
	}
	if err := engine.SetPaused(false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.Deposit(owner, owner, e18(1), 100); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestRewardAccrual(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner := addr(1)
	custody.balance = e18(100_000) // reward headroom

	index, err := engine.Deposit(owner, owner, e18(10_000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 10% APR on 10000 over a full year accrues exactly 1000.
	reward, err := engine.PendingReward(owner, index, int64(YearSeconds))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if reward.Cmp(e18(1000)) != 0 {
		t.Fatalf("unexpected reward %s", reward)
	}

	// Accrual caps at the configured maximum duration.
	capped, err := engine.PendingReward(owner, index, int64(YearSeconds)*3)
	if err != nil {
		t.Fatalf("capped pending: %v", err)
	}
	if capped.Cmp(e18(1000)) != 0 {
		t.Fatalf("expected capped reward, got %s", capped)
	}

	// A clock before the start time reads as zero elapsed.
	zero, err := engine.PendingReward(owner, index, -10)
	if err != nil {
		t.Fatalf("early pending: %v", err)
	}
	if zero.Sign() != 0 {
		t.Fatalf("expected zero reward, got %s", zero)
	}
}

func TestClaimReward(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner := addr(1)
	custody.balance = e18(100_000)

	index, err := engine.Deposit(owner, owner, e18(10_000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	half := int64(YearSeconds) / 2
	paid, err := engine.ClaimReward(owner, index, half)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected payout %s", paid)
	}
	// Claiming again at the same instant finds nothing new.
	if _, err := engine.ClaimReward(owner, index, half); !errors.Is(err, ErrNoRewardsYet) {
		t.Fatalf("expected ErrNoRewardsYet, got %v", err)
	}
	// The second half keeps accruing on top of the claimed amount.
	paid, err = engine.ClaimReward(owner, index, int64(YearSeconds))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if paid.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected second payout %s", paid)
	}

	if _, err := engine.ClaimReward(owner, 5, half); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestUnstakeLifecycle(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner := addr(1)
	custody.balance = e18(100_000)

	index, err := engine.Deposit(owner, owner, e18(10_000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	total, err := engine.TotalStaked()
	if err != nil || total.Cmp(e18(10_000)) != 0 {
		t.Fatalf("total staked %s (%v)", total, err)
	}

	if _, _, err := engine.Unstake(owner, index, 50); !errors.Is(err, ErrMinDurationNotMet) {
		t.Fatalf("expected ErrMinDurationNotMet, got %v", err)
	}

	principal, reward, err := engine.Unstake(owner, index, int64(YearSeconds))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if principal.Cmp(e18(10_000)) != 0 {
		t.Fatalf("unexpected principal %s", principal)
	}
	if reward.Cmp(e18(1000)) != 0 {
		t.Fatalf("unexpected final reward %s", reward)
	}

	total, err = engine.TotalStaked()
	if err != nil || total.Sign() != 0 {
		t.Fatalf("total staked %s (%v)", total, err)
	}
	// Closed positions stay closed and stop accruing.
	if _, _, err := engine.Unstake(owner, index, int64(YearSeconds)*2); !errors.Is(err, ErrPositionClosed) {
		t.Fatalf("expected ErrPositionClosed, got %v", err)
	}
	pending, err := engine.PendingReward(owner, index, int64(YearSeconds)*2)
	if err != nil || pending.Sign() != 0 {
		t.Fatalf("closed position pending %s (%v)", pending, err)
	}
}

func TestAprFrozenAtDeposit(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner := addr(1)
	custody.balance = e18(100_000)

	index, err := engine.Deposit(owner, owner, e18(10_000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// A later rate change must not rewrite the open position.
	if err := engine.SetParams(5000, 100, YearSeconds); err != nil {
		t.Fatalf("set params: %v", err)
	}
	position, err := engine.Position(owner, index)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.AprBps != 1000 {
		t.Fatalf("apr rewritten to %d", position.AprBps)
	}
	reward, err := engine.PendingReward(owner, index, int64(YearSeconds))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if reward.Cmp(e18(1000)) != 0 {
		t.Fatalf("unexpected reward %s", reward)
	}

	// New positions pick up the new rate.
	second, err := engine.Deposit(owner, owner, e18(10_000), 0)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	position, err = engine.Position(owner, second)
	if err != nil {
		t.Fatalf("second position: %v", err)
	}
	if position.AprBps != 5000 {
		t.Fatalf("expected new apr, got %d", position.AprBps)
	}
}

func TestWithdrawExcessProtectsPrincipal(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner, treasury := addr(1), addr(2)

	if _, err := engine.Deposit(owner, owner, e18(10_000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Custody holds exactly the principal: nothing is sweepable.
	if _, err := engine.WithdrawExcess(treasury); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	custody.balance = new(big.Int).Add(custody.balance, e18(250))
	swept, err := engine.WithdrawExcess(treasury)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if swept.Cmp(e18(250)) != 0 {
		t.Fatalf("unexpected sweep %s", swept)
	}
	if custody.balance.Cmp(e18(10_000)) != 0 {
		t.Fatalf("principal touched: %s", custody.balance)
	}
}

func TestPositionsEnumeration(t *testing.T) {
	engine, custody := newTestEngine(t)
	owner := addr(1)
	custody.balance = e18(100_000)

	positions, err := engine.Positions(owner)
	if err != nil || len(positions) != 0 {
		t.Fatalf("unexpected positions %v (%v)", positions, err)
	}
	if _, err := engine.Position(owner, 0); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}

	for i := int64(1); i <= 3; i++ {
		if _, err := engine.Deposit(owner, owner, e18(i*100), int64(i)); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	positions, err = engine.Positions(owner)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	if positions[1].Principal.Cmp(e18(200)) != 0 || positions[1].StartTime != 2 {
		t.Fatalf("unexpected position %+v", positions[1])
	}
	total, err := engine.TotalStaked()
	if err != nil || total.Cmp(e18(600)) != 0 {
		t.Fatalf("total staked %s (%v)", total, err)
	}
}
