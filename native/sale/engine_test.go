package sale

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rakshitdev007/remix-contracts/core/state"
	"github.com/rakshitdev007/remix-contracts/native/common"
	"github.com/rakshitdev007/remix-contracts/native/referral"
	"github.com/rakshitdev007/remix-contracts/native/stake"
	"github.com/rakshitdev007/remix-contracts/storage"
)

const testToken = "RMX"

func usdc(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000))
}

type engineHarness struct {
	t          *testing.T
	mgr        *state.Manager
	engine     *Engine
	now        int64
	owner      [20]byte
	saleVault  [20]byte
	stakeVault [20]byte
	refVault   [20]byte
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken(testToken, "Remix", 18); err != nil {
		t.Fatalf("register sale token: %v", err)
	}
	if err := mgr.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register usdc: %v", err)
	}
	h := &engineHarness{
		t:          t,
		mgr:        mgr,
		engine:     NewEngine(mgr),
		now:        500,
		owner:      addr(0x01),
		saleVault:  addr(0x0A),
		stakeVault: addr(0x0B),
		refVault:   addr(0x0C),
	}
	h.engine.SetNowFunc(func() int64 { return h.now })
	if err := h.engine.Initialize(InitParams{
		Owner:         h.owner,
		SaleToken:     testToken,
		TokenDecimals: 18,
		SaleVault:     h.saleVault,
		StakeVault:    h.stakeVault,
		ReferralVault: h.refVault,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := mgr.Credit(h.owner[:], testToken, e18(1_000_000)); err != nil {
		t.Fatalf("fund owner: %v", err)
	}
	if _, err := h.engine.SetPaymentAsset(h.owner, &PaymentAsset{Symbol: "USDC", Enabled: true, Stable: true, Decimals: 6}); err != nil {
		t.Fatalf("set payment asset: %v", err)
	}
	return h
}

func (h *engineHarness) createSale(saleType string, settlement SettlementMode, total *big.Int) {
	h.t.Helper()
	if _, err := h.engine.CreateSale(h.owner, &SaleConfig{
		Type:             saleType,
		RateUsd:          e18(1),
		TotalTokenAmount: total,
		MinBuyUsd:        e18(10),
		MaxBuyUsd:        e18(1000),
		Settlement:       settlement,
		StartAt:          100,
		EndAt:            1000,
	}); err != nil {
		h.t.Fatalf("create sale %s: %v", saleType, err)
	}
}

func (h *engineHarness) fundBuyer(buyer [20]byte, amount *big.Int) {
	h.t.Helper()
	if err := h.mgr.Credit(buyer[:], "USDC", amount); err != nil {
		h.t.Fatalf("fund buyer: %v", err)
	}
}

func (h *engineHarness) balance(who [20]byte, token string) *big.Int {
	h.t.Helper()
	bal, err := h.mgr.Balance(who[:], token)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestInitializeLifecycle(t *testing.T) {
	h := newEngineHarness(t)

	if err := h.engine.Initialize(InitParams{Owner: h.owner, SaleToken: testToken}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	owner, err := h.engine.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != h.owner {
		t.Fatalf("unexpected owner %x", owner)
	}

	fresh := NewEngine(state.NewManager(storage.NewMemDB()))
	if _, err := fresh.CreateSale(h.owner, validSaleConfig()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := fresh.Initialize(InitParams{SaleToken: testToken}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress for zero owner, got %v", err)
	}
}

func TestOwnerGating(t *testing.T) {
	h := newEngineHarness(t)
	mallory := addr(0x66)

	if _, err := h.engine.CreateSale(mallory, validSaleConfig()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("create sale: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := h.engine.SetPaymentAsset(mallory, &PaymentAsset{Symbol: "DAI", Enabled: true, Stable: true, Decimals: 18}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("set asset: expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.SetReferralPercent(mallory, 5); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("set percent: expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.SetStakeParams(mallory, 1000, 0, stake.YearSeconds); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("stake params: expected ErrNotAuthorized, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	h := newEngineHarness(t)
	next := addr(0x02)

	if err := h.engine.TransferOwnership(next, next); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.TransferOwnership(h.owner, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := h.engine.TransferOwnership(h.owner, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// The old owner is fully locked out.
	if err := h.engine.SetReferralPercent(h.owner, 5); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected old owner locked out, got %v", err)
	}
	if err := h.engine.SetReferralPercent(next, 5); err != nil {
		t.Fatalf("new owner blocked: %v", err)
	}
}

func TestBuyInstantSettlement(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	receipt, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "usdc", Amount: usdc(100)})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.UsdAmount.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected usd amount %s", receipt.UsdAmount)
	}
	if receipt.TokenVolume.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected token volume %s", receipt.TokenVolume)
	}
	if receipt.Settlement != SettleInstant || receipt.Staked {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	// Tokens delivered, payment custodied, inventory debited.
	if bal := h.balance(buyer, testToken); bal.Cmp(e18(100)) != 0 {
		t.Fatalf("buyer token balance %s", bal)
	}
	if bal := h.balance(buyer, "USDC"); bal.Cmp(usdc(900)) != 0 {
		t.Fatalf("buyer usdc balance %s", bal)
	}
	if bal := h.balance(h.saleVault, "USDC"); bal.Cmp(usdc(100)) != 0 {
		t.Fatalf("vault usdc balance %s", bal)
	}
	cfg, err := h.engine.Sale("presale")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if cfg.RemainingQuantity.Cmp(e18(99_900)) != 0 {
		t.Fatalf("unexpected remaining %s", cfg.RemainingQuantity)
	}
	if cfg.Status != SaleLive {
		t.Fatalf("expected live status, got %s", cfg.Status)
	}

	summary, err := h.engine.ContributorSummary(buyer, "presale")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalUsd.Cmp(e18(100)) != 0 || summary.TotalVolume.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	count, err := h.engine.ContributionCount(buyer, "presale")
	if err != nil || count != 1 {
		t.Fatalf("contribution count %d (%v)", count, err)
	}
	contributors, err := h.engine.ContributorCount("presale")
	if err != nil || contributors != 1 {
		t.Fatalf("contributor count %d (%v)", contributors, err)
	}
}

func TestBuyValidation(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(10_000))

	if _, err := h.engine.Buy(nil); err == nil {
		t.Fatal("expected error for nil request")
	}
	if _, err := h.engine.Buy(&PurchaseRequest{SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: big.NewInt(0)}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "DAI", Amount: usdc(100)}); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "unknown", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}

	h.now = 50
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrSaleNotLive) {
		t.Fatalf("expected ErrSaleNotLive, got %v", err)
	}
	h.now = 1001
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrSaleEnded) {
		t.Fatalf("expected ErrSaleEnded, got %v", err)
	}
	h.now = 500

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(9)}); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	// Exactly the maximum passes; one smallest unit above fails.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(1000)}); err != nil {
		t.Fatalf("max boundary buy: %v", err)
	}
	over := new(big.Int).Add(usdc(1000), big.NewInt(1))
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: over}); !errors.Is(err, ErrAboveMaximum) {
		t.Fatalf("expected ErrAboveMaximum, got %v", err)
	}

	// A disabled asset converts to zero and is rejected up front.
	if _, err := h.engine.SetPaymentAsset(h.owner, &PaymentAsset{Symbol: "USDC", Enabled: false, Stable: true, Decimals: 6}); err != nil {
		t.Fatalf("disable asset: %v", err)
	}
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset for disabled asset, got %v", err)
	}
}

func TestBuyExhaustsQuantity(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("micro", SettleInstant, e18(50))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "micro", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrInsufficientSaleQuantity) {
		t.Fatalf("expected ErrInsufficientSaleQuantity, got %v", err)
	}
	// Draining the tranche exactly succeeds.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "micro", Asset: "USDC", Amount: usdc(50)}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	cfg, err := h.engine.Sale("micro")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if cfg.RemainingQuantity.Sign() != 0 {
		t.Fatalf("expected empty tranche, got %s", cfg.RemainingQuantity)
	}
}

func TestBuyDeferredAndClaim(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("public", SettleDeferred, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	receipt, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "public", Asset: "USDC", Amount: usdc(200)})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.Settlement != SettleDeferred {
		t.Fatalf("unexpected settlement %s", receipt.Settlement)
	}
	// Nothing is delivered until the sale ends.
	if bal := h.balance(buyer, testToken); bal.Sign() != 0 {
		t.Fatalf("expected no tokens yet, got %s", bal)
	}
	claim, err := h.engine.Claimable(buyer, "public")
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claim.Outstanding().Cmp(e18(200)) != 0 {
		t.Fatalf("unexpected outstanding %s", claim.Outstanding())
	}

	if _, err := h.engine.Claim(buyer, "public", false); !errors.Is(err, ErrSaleNotEnded) {
		t.Fatalf("expected ErrSaleNotEnded, got %v", err)
	}

	h.now = 1001
	delta, err := h.engine.Claim(buyer, "public", false)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if delta.Cmp(e18(200)) != 0 {
		t.Fatalf("unexpected claim delta %s", delta)
	}
	if bal := h.balance(buyer, testToken); bal.Cmp(e18(200)) != 0 {
		t.Fatalf("unexpected buyer balance %s", bal)
	}
	if _, err := h.engine.Claim(buyer, "public", false); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}
}

func TestClaimWrongSettlementMode(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	h.now = 1001
	if _, err := h.engine.Claim(addr(0x11), "presale", false); !errors.Is(err, ErrWrongSettlementMode) {
		t.Fatalf("expected ErrWrongSettlementMode, got %v", err)
	}
}

func TestClaimIntoStake(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("public", SettleDeferred, e18(100_000))
	if err := h.engine.SetStakeParams(h.owner, 1000, 0, stake.YearSeconds); err != nil {
		t.Fatalf("stake params: %v", err)
	}
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "public", Asset: "USDC", Amount: usdc(200)}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	h.now = 1001
	delta, err := h.engine.Claim(buyer, "public", true)
	if err != nil {
		t.Fatalf("claim into stake: %v", err)
	}
	if delta.Cmp(e18(200)) != 0 {
		t.Fatalf("unexpected delta %s", delta)
	}
	// Tokens sit in stake custody, not the buyer's account.
	if bal := h.balance(buyer, testToken); bal.Sign() != 0 {
		t.Fatalf("expected no direct payout, got %s", bal)
	}
	if bal := h.balance(h.stakeVault, testToken); bal.Cmp(e18(200)) != 0 {
		t.Fatalf("unexpected stake vault balance %s", bal)
	}
	positions, err := h.engine.StakePositions(buyer)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Principal.Cmp(e18(200)) != 0 || !positions[0].Active {
		t.Fatalf("unexpected positions %+v", positions)
	}
	if positions[0].AprBps != 1000 {
		t.Fatalf("expected frozen apr, got %d", positions[0].AprBps)
	}
}

func TestBuyWithStake(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	if err := h.engine.SetStakeParams(h.owner, 1000, 0, stake.YearSeconds); err != nil {
		t.Fatalf("stake params: %v", err)
	}
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	receipt, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Stake: true})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !receipt.Staked || receipt.StakeIndex != 0 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if bal := h.balance(buyer, testToken); bal.Sign() != 0 {
		t.Fatalf("staked purchase must not pay out directly, got %s", bal)
	}
	if bal := h.balance(h.stakeVault, testToken); bal.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected stake vault balance %s", bal)
	}
	total, err := h.engine.TotalStaked()
	if err != nil {
		t.Fatalf("total staked: %v", err)
	}
	if total.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected total staked %s", total)
	}
}

func TestBuyWithStakeRespectsPause(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	if err := h.engine.SetStakePaused(h.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Stake: true}); !errors.Is(err, stake.ErrStakingPaused) {
		t.Fatalf("expected ErrStakingPaused, got %v", err)
	}
	// The whole purchase rolled back, payment included.
	if bal := h.balance(buyer, "USDC"); bal.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("expected rollback, buyer balance %s", bal)
	}
}

// reentrantCustody wraps the ledger custody with a payout hook that calls back
// into the engine, emulating a malicious settlement target.
type reentrantCustody struct {
	inner   common.TokenCustody
	attack  func() error
	tripped *bool
}

func (c *reentrantCustody) Pull(from [20]byte, token string, amount *big.Int) error {
	return c.inner.Pull(from, token, amount)
}

func (c *reentrantCustody) Push(to [20]byte, token string, amount *big.Int) error {
	if !*c.tripped {
		*c.tripped = true
		if err := c.attack(); err != nil {
			return err
		}
	}
	return c.inner.Push(to, token, amount)
}

func (c *reentrantCustody) BalanceOf(token string) (*big.Int, error) {
	return c.inner.BalanceOf(token)
}

func TestBuyReentrancyGuard(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	tripped := false
	h.engine.SetCustodyFunc(func(st BalanceState, vault [20]byte) common.TokenCustody {
		return &reentrantCustody{
			inner:   NewLedgerCustody(st, vault, common.AllowAll{}),
			tripped: &tripped,
			attack: func() error {
				_, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)})
				return err
			},
		}
	})

	_, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)})
	if !errors.Is(err, common.ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	if !tripped {
		t.Fatal("payout hook never fired")
	}

	// The aborted purchase left no trace.
	if bal := h.balance(buyer, "USDC"); bal.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("buyer usdc balance %s", bal)
	}
	if bal := h.balance(buyer, testToken); bal.Sign() != 0 {
		t.Fatalf("buyer token balance %s", bal)
	}
	cfg, err := h.engine.Sale("presale")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if cfg.RemainingQuantity.Cmp(e18(100_000)) != 0 {
		t.Fatalf("inventory changed: %s", cfg.RemainingQuantity)
	}
	count, err := h.engine.ContributionCount(buyer, "presale")
	if err != nil || count != 0 {
		t.Fatalf("contribution count %d (%v)", count, err)
	}
}

func TestBuyWithNativeCoin(t *testing.T) {
	h := newEngineHarness(t)
	if err := h.mgr.RegisterToken(NativeAsset, "Native Coin", 18); err != nil {
		t.Fatalf("register native coin: %v", err)
	}
	manual := NewManualFeed()
	manual.Set(NativeAsset, big.NewInt(200_000_000), 8, time.Now()) // $2.00
	agg := NewFeedAggregator([]string{"manual"}, time.Minute)
	agg.Register("manual", manual)
	h.engine.SetPriceFeed(agg)

	if _, err := h.engine.SetPaymentAsset(h.owner, &PaymentAsset{
		Symbol:    NativeAsset,
		Enabled:   true,
		Decimals:  18,
		OracleRef: NativeAsset,
	}); err != nil {
		t.Fatalf("set native asset: %v", err)
	}
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	if err := h.mgr.Credit(buyer[:], NativeAsset, e18(50)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	// 50 native at $2 is 100 USD, buying 100 tokens at the $1 rate.
	receipt, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: NativeAsset, Amount: e18(50)})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if receipt.UsdAmount.Cmp(e18(100)) != 0 || receipt.TokenVolume.Cmp(e18(100)) != 0 {
		t.Fatalf("unexpected receipt usd=%s volume=%s", receipt.UsdAmount, receipt.TokenVolume)
	}
	if bal := h.balance(buyer, NativeAsset); bal.Sign() != 0 {
		t.Fatalf("buyer native balance %s", bal)
	}
	if bal := h.balance(h.saleVault, NativeAsset); bal.Cmp(e18(50)) != 0 {
		t.Fatalf("vault native balance %s", bal)
	}
	if bal := h.balance(buyer, testToken); bal.Cmp(e18(100)) != 0 {
		t.Fatalf("buyer token balance %s", bal)
	}
}

func TestModulePause(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))

	if err := h.engine.SetPaused(buyer, true); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.SetPaused(h.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !h.engine.Paused() {
		t.Fatal("pause flag not visible")
	}

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused from buy, got %v", err)
	}
	if _, err := h.engine.Claim(buyer, "presale", false); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused from claim, got %v", err)
	}
	// Reads stay available while paused.
	if _, err := h.engine.Sale("presale"); err != nil {
		t.Fatalf("read while paused: %v", err)
	}

	if err := h.engine.SetPaused(h.owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); err != nil {
		t.Fatalf("buy after unpause: %v", err)
	}
}

func TestCreditBalance(t *testing.T) {
	h := newEngineHarness(t)
	account := addr(0x11)

	if err := h.engine.CreditBalance(account, account, testToken, e18(5)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.CreditBalance(h.owner, [20]byte{}, testToken, e18(5)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := h.engine.CreditBalance(h.owner, account, testToken, big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if err := h.engine.CreditBalance(h.owner, account, "DAI", e18(5)); err == nil {
		t.Fatal("expected error for unregistered token")
	}

	if err := h.engine.CreditBalance(h.owner, account, "usdc", usdc(25)); err != nil {
		t.Fatalf("credit usdc: %v", err)
	}
	if bal := h.balance(account, "USDC"); bal.Cmp(usdc(25)) != 0 {
		t.Fatalf("usdc balance %s", bal)
	}
	// Blank token defaults to the sale token.
	if err := h.engine.CreditBalance(h.owner, account, "", e18(7)); err != nil {
		t.Fatalf("credit sale token: %v", err)
	}
	if bal := h.balance(account, testToken); bal.Cmp(e18(7)) != 0 {
		t.Fatalf("sale token balance %s", bal)
	}
}

func TestBuyRollbackOnReferralFailure(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	// Percent configured but the pool is empty, so the reward step must fail.
	if err := h.engine.SetReferralPercent(h.owner, 5); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	buyer := addr(0x11)
	referrer := addr(0x22)
	h.fundBuyer(buyer, usdc(1_000))

	_, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Referrer: referrer})
	if !errors.Is(err, referral.ErrInsufficientAllocation) {
		t.Fatalf("expected ErrInsufficientAllocation, got %v", err)
	}

	// Everything rolled back, the referral edge included.
	if bal := h.balance(buyer, "USDC"); bal.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("buyer usdc balance %s", bal)
	}
	if bal := h.balance(buyer, testToken); bal.Sign() != 0 {
		t.Fatalf("buyer token balance %s", bal)
	}
	if _, linked, err := h.engine.ReferrerOf(buyer); err != nil || linked {
		t.Fatalf("edge persisted: linked=%v err=%v", linked, err)
	}
	count, err := h.engine.ContributionCount(buyer, "presale")
	if err != nil || count != 0 {
		t.Fatalf("contribution count %d (%v)", count, err)
	}
}

func TestReferralRewardFlow(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	if err := h.engine.SetReferralPercent(h.owner, 10); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	if err := h.engine.FundReferralAllocation(h.owner, e18(1_000)); err != nil {
		t.Fatalf("fund allocation: %v", err)
	}
	buyer := addr(0x11)
	referrer := addr(0x22)
	h.fundBuyer(buyer, usdc(1_000))

	// First purchase carries the referrer and pays 10% of the volume.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Referrer: referrer}); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if bal := h.balance(referrer, testToken); bal.Cmp(e18(10)) != 0 {
		t.Fatalf("referrer balance %s", bal)
	}

	// Restating the referrer on a later purchase keeps rewarding them; the
	// AddReferral call is a silent no-op on the existing edge.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(50), Referrer: referrer}); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if bal := h.balance(referrer, testToken); bal.Cmp(e18(15)) != 0 {
		t.Fatalf("referrer balance after repeat %s", bal)
	}

	settled, err := h.engine.ReferralSettledTotal(referrer)
	if err != nil {
		t.Fatalf("settled: %v", err)
	}
	if settled.Cmp(e18(15)) != 0 {
		t.Fatalf("unexpected settled total %s", settled)
	}
	remaining, distributed, err := h.engine.ReferralAllocation()
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if remaining.Cmp(e18(985)) != 0 || distributed.Cmp(e18(15)) != 0 {
		t.Fatalf("unexpected pool %s / %s", remaining, distributed)
	}

	// A competing referrer cannot overwrite the edge.
	if linked, err := h.engine.AddReferral(h.owner, buyer, addr(0x33)); err != nil || linked {
		t.Fatalf("expected silent no-op, linked=%v err=%v", linked, err)
	}
	got, ok, err := h.engine.ReferrerOf(buyer)
	if err != nil || !ok || got != referrer {
		t.Fatalf("unexpected edge %x ok=%v err=%v", got, ok, err)
	}
}

func TestBuyWithoutReferrerAccruesNoReward(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	if err := h.engine.SetReferralPercent(h.owner, 10); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	if err := h.engine.FundReferralAllocation(h.owner, e18(10)); err != nil {
		t.Fatalf("fund allocation: %v", err)
	}
	buyer := addr(0x11)
	referrer := addr(0x22)
	h.fundBuyer(buyer, usdc(1_000))

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Referrer: referrer}); err != nil {
		t.Fatalf("referred buy: %v", err)
	}
	if bal := h.balance(referrer, testToken); bal.Cmp(e18(10)) != 0 {
		t.Fatalf("referrer balance %s", bal)
	}

	// The buyer stays linked, but a purchase that supplies no referrer must
	// not touch the reward ledger. The pool is drained, so an accrual
	// attempt here would also surface as ErrInsufficientAllocation.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); err != nil {
		t.Fatalf("referrer-less buy: %v", err)
	}
	settled, err := h.engine.ReferralSettledTotal(referrer)
	if err != nil {
		t.Fatalf("settled: %v", err)
	}
	if settled.Cmp(e18(10)) != 0 {
		t.Fatalf("reward accrued without a referrer: settled %s", settled)
	}
	remaining, distributed, err := h.engine.ReferralAllocation()
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if remaining.Sign() != 0 || distributed.Cmp(e18(10)) != 0 {
		t.Fatalf("pool touched without a referrer: %s / %s", remaining, distributed)
	}

	// Self-referral is ignored the same way.
	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100), Referrer: buyer}); err != nil {
		t.Fatalf("self-referred buy: %v", err)
	}
	if settled, _ := h.engine.ReferralSettledTotal(referrer); settled.Cmp(e18(10)) != 0 {
		t.Fatalf("self-referral accrued a reward: %s", settled)
	}
}

func TestReferralDeferredPending(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("public", SettleDeferred, e18(100_000))
	if err := h.engine.SetReferralPercent(h.owner, 10); err != nil {
		t.Fatalf("set percent: %v", err)
	}
	if err := h.engine.FundReferralAllocation(h.owner, e18(1_000)); err != nil {
		t.Fatalf("fund allocation: %v", err)
	}
	buyer := addr(0x11)
	referrer := addr(0x22)
	h.fundBuyer(buyer, usdc(1_000))

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "public", Asset: "USDC", Amount: usdc(100), Referrer: referrer}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// Deferred sales park the reward as pending; nothing pays out yet.
	if bal := h.balance(referrer, testToken); bal.Sign() != 0 {
		t.Fatalf("unexpected early payout %s", bal)
	}
	pending, err := h.engine.ReferralPendingBalance(referrer, "public")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(e18(10)) != 0 {
		t.Fatalf("unexpected pending %s", pending)
	}

	if _, err := h.engine.ClaimReferralPending(referrer, "public"); !errors.Is(err, referral.ErrSaleNotEndedYet) {
		t.Fatalf("expected ErrSaleNotEndedYet, got %v", err)
	}

	h.now = 1001
	paid, err := h.engine.ClaimReferralPending(referrer, "public")
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	if paid.Cmp(e18(10)) != 0 {
		t.Fatalf("unexpected payout %s", paid)
	}
	if bal := h.balance(referrer, testToken); bal.Cmp(e18(10)) != 0 {
		t.Fatalf("referrer balance %s", bal)
	}
	if _, err := h.engine.ClaimReferralPending(referrer, "public"); !errors.Is(err, referral.ErrNothingPending) {
		t.Fatalf("expected ErrNothingPending, got %v", err)
	}
}

func TestReferralHandlerRole(t *testing.T) {
	h := newEngineHarness(t)
	handler := addr(0x33)
	user := addr(0x11)
	referrer := addr(0x22)

	if _, err := h.engine.AddReferral(handler, user, referrer); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.AddReferralHandler(h.owner, handler); err != nil {
		t.Fatalf("add handler: %v", err)
	}
	if !h.engine.IsReferralHandler(handler) {
		t.Fatal("handler role not visible")
	}
	linked, err := h.engine.AddReferral(handler, user, referrer)
	if err != nil || !linked {
		t.Fatalf("handler add: linked=%v err=%v", linked, err)
	}
	if err := h.engine.RemoveReferralHandler(h.owner, handler); err != nil {
		t.Fatalf("remove handler: %v", err)
	}
	if h.engine.IsReferralHandler(handler) {
		t.Fatal("handler role not revoked")
	}
	if _, err := h.engine.AddReferral(handler, addr(0x44), referrer); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized after revoke, got %v", err)
	}
}

func TestStakeLifecycleThroughEngine(t *testing.T) {
	h := newEngineHarness(t)
	if err := h.engine.SetStakeParams(h.owner, 1000, 100, stake.YearSeconds); err != nil {
		t.Fatalf("stake params: %v", err)
	}
	staker := addr(0x11)
	if err := h.mgr.Credit(staker[:], testToken, e18(10_000)); err != nil {
		t.Fatalf("fund staker: %v", err)
	}
	// Pre-fund reward headroom so payouts do not dip into principal.
	if err := h.mgr.Credit(h.stakeVault[:], testToken, e18(1_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}

	index, err := h.engine.StakeDeposit(staker, e18(10_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Unstaking inside the lock window fails.
	h.now += 50
	if _, _, err := h.engine.StakeUnstake(staker, index); !errors.Is(err, stake.ErrMinDurationNotMet) {
		t.Fatalf("expected ErrMinDurationNotMet, got %v", err)
	}

	// Half a year at 10% APR on 10000 accrues 500.
	h.now += int64(stake.YearSeconds)/2 - 50
	reward, err := h.engine.StakePendingReward(staker, index)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if reward.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected pending reward %s", reward)
	}
	paid, err := h.engine.StakeClaimReward(staker, index)
	if err != nil {
		t.Fatalf("claim reward: %v", err)
	}
	if paid.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected reward payout %s", paid)
	}
	if _, err := h.engine.StakeClaimReward(staker, index); !errors.Is(err, stake.ErrNoRewardsYet) {
		t.Fatalf("expected ErrNoRewardsYet, got %v", err)
	}

	principal, finalReward, err := h.engine.StakeUnstake(staker, index)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if principal.Cmp(e18(10_000)) != 0 || finalReward.Sign() != 0 {
		t.Fatalf("unexpected unstake %s / %s", principal, finalReward)
	}
	if _, _, err := h.engine.StakeUnstake(staker, index); !errors.Is(err, stake.ErrPositionClosed) {
		t.Fatalf("expected ErrPositionClosed, got %v", err)
	}
	if bal := h.balance(staker, testToken); bal.Cmp(e18(10_500)) != 0 {
		t.Fatalf("unexpected staker balance %s", bal)
	}

	// The leftover reward headroom is sweepable, principal never was.
	swept, err := h.engine.StakeWithdrawExcess(h.owner, h.owner)
	if err != nil {
		t.Fatalf("withdraw excess: %v", err)
	}
	if swept.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected sweep %s", swept)
	}
}

type denyList struct {
	blocked [20]byte
}

func (d denyList) IsEligible(addr [20]byte) bool { return addr != d.blocked }

func TestBuyComplianceRejection(t *testing.T) {
	h := newEngineHarness(t)
	h.createSale("presale", SettleInstant, e18(100_000))
	buyer := addr(0x11)
	h.fundBuyer(buyer, usdc(1_000))
	h.engine.SetCompliance(denyList{blocked: buyer})

	if _, err := h.engine.Buy(&PurchaseRequest{Buyer: buyer, SaleType: "presale", Asset: "USDC", Amount: usdc(100)}); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	// Payment rolled back with the rest of the purchase.
	if bal := h.balance(buyer, "USDC"); bal.Cmp(usdc(1_000)) != 0 {
		t.Fatalf("buyer usdc balance %s", bal)
	}
}
