package sale

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	coreevents "github.com/rakshitdev007/remix-contracts/core/events"
	"github.com/rakshitdev007/remix-contracts/core/state"
	"github.com/rakshitdev007/remix-contracts/native/common"
	"github.com/rakshitdev007/remix-contracts/native/referral"
	"github.com/rakshitdev007/remix-contracts/native/stake"
)

// referralHandlerRole is the role granting direct AddReferral access besides
// the owner.
const referralHandlerRole = "referral-handler"

// InitParams configures a fresh engine instance.
type InitParams struct {
	Owner         [20]byte
	SaleToken     string
	TokenDecimals uint8
	SaleVault     [20]byte
	StakeVault    [20]byte
	ReferralVault [20]byte
}

type storedEngineMeta struct {
	Owner         [20]byte
	SaleToken     string
	TokenDecimals uint8
	SaleVault     [20]byte
	StakeVault    [20]byte
	ReferralVault [20]byte
}

// CustodyFunc builds the custody used for a vault within one transaction
// scope. Overridable for tests.
type CustodyFunc func(st BalanceState, vault [20]byte) common.TokenCustody

// Engine is the top-level coordinator. Every public mutating operation runs
// under the shared reentrancy guard and inside one state transition that is
// committed only on success, so each call is all-or-nothing. Domain logic
// lives in the registry, ledgers and the referral/stake engines; this type
// sequences them.
type Engine struct {
	mgr        *state.Manager
	guard      common.ReentrancyGuard
	emitter    coreevents.Emitter
	nowFn      func() int64
	feed       PriceFeed
	compliance common.ComplianceOracle
	custodyFn  CustodyFunc
}

// NewEngine creates a sale engine over the provided state manager with a
// no-op emitter and an allow-all compliance oracle.
func NewEngine(mgr *state.Manager) *Engine {
	e := &Engine{
		mgr:        mgr,
		emitter:    coreevents.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		compliance: common.AllowAll{},
	}
	e.custodyFn = func(st BalanceState, vault [20]byte) common.TokenCustody {
		return NewLedgerCustody(st, vault, e.compliance)
	}
	return e
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter coreevents.Emitter) {
	if emitter == nil {
		e.emitter = coreevents.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPriceFeed configures the oracle backing the price normalizer.
func (e *Engine) SetPriceFeed(feed PriceFeed) { e.feed = feed }

// SetCompliance configures the compliance oracle gating settlement payouts.
func (e *Engine) SetCompliance(oracle common.ComplianceOracle) {
	if oracle == nil {
		oracle = common.AllowAll{}
	}
	e.compliance = oracle
}

// SetCustodyFunc overrides custody construction. Intended for tests.
func (e *Engine) SetCustodyFunc(fn CustodyFunc) {
	if fn != nil {
		e.custodyFn = fn
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emitAll(events []coreevents.Event) {
	if e.emitter == nil {
		return
	}
	for _, evt := range events {
		e.emitter.Emit(evt)
	}
}

// Initialize writes the engine metadata. It can succeed exactly once per
// underlying state; every other operation fails with ErrNotInitialized until
// it has run.
func (e *Engine) Initialize(params InitParams) error {
	var zero [20]byte
	if params.Owner == zero {
		return ErrZeroAddress
	}
	if params.SaleToken == "" {
		return fmt.Errorf("sale: sale token required")
	}
	ok, err := e.mgr.KVGet([]byte(engineMetaKey), nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	meta := &storedEngineMeta{
		Owner:         params.Owner,
		SaleToken:     params.SaleToken,
		TokenDecimals: params.TokenDecimals,
		SaleVault:     params.SaleVault,
		StakeVault:    params.StakeVault,
		ReferralVault: params.ReferralVault,
	}
	return e.mgr.KVPut([]byte(engineMetaKey), meta)
}

func loadMeta(st Storage) (*storedEngineMeta, error) {
	meta := new(storedEngineMeta)
	ok, err := st.KVGet([]byte(engineMetaKey), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return meta, nil
}

// Owner returns the configured owner address.
func (e *Engine) Owner() ([20]byte, error) {
	meta, err := loadMeta(e.mgr)
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

func requireOwner(meta *storedEngineMeta, caller [20]byte) error {
	if caller != meta.Owner {
		return ErrNotAuthorized
	}
	return nil
}

// TransferOwnership rotates the owner address.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	var zero [20]byte
	if newOwner == zero {
		return ErrZeroAddress
	}
	tx := e.mgr.Begin()
	meta, err := loadMeta(tx)
	if err != nil {
		return err
	}
	if err := requireOwner(meta, caller); err != nil {
		return err
	}
	meta.Owner = newOwner
	if err := tx.KVPut([]byte(engineMetaKey), meta); err != nil {
		return err
	}
	return tx.Commit()
}

// pauseModule names this engine in the persisted module-pause table.
const pauseModule = "ico"

// pauseView adapts the persisted pause flags to common.PauseView.
type pauseView struct {
	st Storage
}

func (v pauseView) IsPaused(module string) bool {
	var paused bool
	ok, err := v.st.KVGet(pauseKey(module), &paused)
	return err == nil && ok && paused
}

// SetPaused toggles the module-wide pause switch. Owner only. While paused,
// purchases and deferred claims fail with common.ErrModulePaused; read
// operations and the other admin paths stay available.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	tx := e.mgr.Begin()
	meta, err := loadMeta(tx)
	if err != nil {
		return err
	}
	if err := requireOwner(meta, caller); err != nil {
		return err
	}
	if err := tx.KVPut(pauseKey(pauseModule), paused); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emitAll([]coreevents.Event{coreevents.SalePauseChanged{Paused: paused}})
	return nil
}

// Paused reports the module pause flag.
func (e *Engine) Paused() bool {
	return pauseView{st: e.mgr}.IsPaused(pauseModule)
}

// CreditBalance mints amount of a registered token onto an account. Owner
// only. This is the operator funding path: a fresh ledger has no balances, so
// sale inventory and buyer payment funds both enter through here.
func (e *Engine) CreditBalance(caller, account [20]byte, token string, amount *big.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return translateGuardErr(err)
	}
	defer release()
	var zero [20]byte
	if account == zero {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("sale: credit amount must be positive")
	}
	tx := e.mgr.Begin()
	meta, err := loadMeta(tx)
	if err != nil {
		return err
	}
	if err := requireOwner(meta, caller); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(token))
	if symbol == "" {
		symbol = meta.SaleToken
	}
	if !tx.TokenExists(symbol) {
		return fmt.Errorf("sale: unknown token %q", symbol)
	}
	if err := tx.Credit(account[:], symbol, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emitAll([]coreevents.Event{coreevents.BalanceCredited{
		Account: account,
		Token:   symbol,
		Amount:  amount,
	}})
	return nil
}

func translateGuardErr(err error) error {
	if errors.Is(err, common.ErrReentrantCall) {
		return fmt.Errorf("sale: %w", common.ErrReentrantCall)
	}
	return err
}

// saleInfoAdapter exposes sale-registry facts to the referral ledger.
type saleInfoAdapter struct {
	reg *Registry
}

func (a saleInfoAdapter) PayoutDeferred(saleType string) (bool, error) {
	cfg, err := a.reg.Sale(saleType)
	if err != nil {
		return false, err
	}
	return cfg.Settlement == SettleDeferred, nil
}

func (a saleInfoAdapter) SaleEndsAt(saleType string) (int64, error) {
	cfg, err := a.reg.Sale(saleType)
	if err != nil {
		return 0, err
	}
	return cfg.EndAt, nil
}

// txScope bundles the per-transaction component views.
type txScope struct {
	tx          *state.Manager
	meta        *storedEngineMeta
	registry    *Registry
	ledger      *Ledger
	vault       *Vault
	saleCustody common.TokenCustody
	refCustody  common.TokenCustody
	stakeFunds  common.TokenCustody
	referral    *referral.Ledger
	stake       *stake.Engine
}

func (e *Engine) begin() (*txScope, error) {
	tx := e.mgr.Begin()
	meta, err := loadMeta(tx)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry(tx)
	saleCustody := e.custodyFn(tx, meta.SaleVault)
	refCustody := e.custodyFn(tx, meta.ReferralVault)
	stakeFunds := e.custodyFn(tx, meta.StakeVault)
	return &txScope{
		tx:          tx,
		meta:        meta,
		registry:    registry,
		ledger:      NewLedger(tx),
		vault:       NewVault(tx),
		saleCustody: saleCustody,
		refCustody:  refCustody,
		stakeFunds:  stakeFunds,
		referral:    referral.NewLedger(tx, refCustody, meta.SaleToken, saleInfoAdapter{reg: registry}),
		stake:       stake.NewEngine(tx, stakeFunds, meta.SaleToken),
	}, nil
}

// --- payment assets ---

// SetPaymentAsset registers or updates a payment asset. Owner only.
func (e *Engine) SetPaymentAsset(caller [20]byte, asset *PaymentAsset) (*PaymentAsset, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return nil, err
	}
	sanitized, err := scope.registry.SetPaymentAsset(asset)
	if err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.PaymentAssetConfigured{
		Asset:    sanitized.Symbol,
		Enabled:  sanitized.Enabled,
		Stable:   sanitized.Stable,
		Decimals: sanitized.Decimals,
	}})
	return sanitized, nil
}

// PaymentAsset loads an asset record.
func (e *Engine) PaymentAsset(symbol string) (*PaymentAsset, error) {
	return NewRegistry(e.mgr).PaymentAsset(symbol)
}

// PaymentAssets enumerates registered asset symbols.
func (e *Engine) PaymentAssets() ([]string, error) {
	return NewRegistry(e.mgr).PaymentAssets()
}

// --- sale configuration ---

// CreateSale configures a new tranche and pulls its inventory from the caller
// into sale custody. Owner only.
func (e *Engine) CreateSale(caller [20]byte, cfg *SaleConfig) (*SaleConfig, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return nil, err
	}
	created, err := scope.registry.CreateSale(cfg, e.now())
	if err != nil {
		return nil, err
	}
	if err := scope.saleCustody.Pull(caller, scope.meta.SaleToken, created.TotalTokenAmount); err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.SaleCreated{
		SaleType:    created.Type,
		RateUsd:     created.RateUsd,
		TotalAmount: created.TotalTokenAmount,
		MinUsd:      created.MinBuyUsd,
		MaxUsd:      created.MaxBuyUsd,
		Settlement:  created.Settlement.String(),
		StartAt:     created.StartAt,
		EndAt:       created.EndAt,
	}})
	return created, nil
}

// UpdateSaleTime re-times a sale window. Owner only.
func (e *Engine) UpdateSaleTime(caller [20]byte, saleType string, startAt, endAt int64) (*SaleConfig, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(scope.meta, caller); err != nil {
		return nil, err
	}
	updated, err := scope.registry.UpdateSaleTime(saleType, startAt, endAt, e.now())
	if err != nil {
		return nil, err
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	e.emitAll([]coreevents.Event{coreevents.SaleTimeUpdated{
		SaleType: updated.Type,
		StartAt:  updated.StartAt,
		EndAt:    updated.EndAt,
		Status:   updated.Status.String(),
	}})
	return updated, nil
}

// Sale loads a sale configuration with the status derived from the clock.
func (e *Engine) Sale(saleType string) (*SaleConfig, error) {
	cfg, err := NewRegistry(e.mgr).Sale(saleType)
	if err != nil {
		return nil, err
	}
	cfg.Status = cfg.DerivedStatus(e.now())
	return cfg, nil
}

// Sales enumerates all configured sale types.
func (e *Engine) Sales() ([]string, error) {
	return NewRegistry(e.mgr).Sales()
}

// --- purchase ---

// PurchaseRequest describes one buy attempt.
type PurchaseRequest struct {
	Buyer    [20]byte
	SaleType string
	Asset    string
	Amount   *big.Int
	Stake    bool
	Referrer [20]byte // zero address means no referrer supplied
}

// PurchaseReceipt reports the outcome of a successful purchase.
type PurchaseReceipt struct {
	SaleType    string
	UsdAmount   *big.Int
	TokenVolume *big.Int
	Settlement  SettlementMode
	Staked      bool
	StakeIndex  uint64
}

// Buy executes the full purchase sequence atomically: validation, payment
// pull, quantity debit, contribution record, settlement and referral
// notification. Any failure leaves state untouched.
func (e *Engine) Buy(req *PurchaseRequest) (*PurchaseReceipt, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	if err := common.Guard(pauseView{st: e.mgr}, pauseModule); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("sale: nil purchase request")
	}
	var zero [20]byte
	if req.Buyer == zero {
		return nil, ErrZeroAddress
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("sale: payment amount must be positive")
	}
	now := e.now()

	scope, err := e.begin()
	if err != nil {
		return nil, err
	}

	// Pure validation prefix: no state is touched before the payment pull.
	asset, err := scope.registry.PaymentAsset(req.Asset)
	if err != nil {
		return nil, err
	}
	if !asset.Enabled {
		return nil, ErrUnsupportedAsset
	}
	cfg, err := scope.registry.Sale(req.SaleType)
	if err != nil {
		return nil, err
	}
	if now < cfg.StartAt {
		return nil, ErrSaleNotLive
	}
	if now > cfg.EndAt {
		return nil, ErrSaleEnded
	}
	usd, err := NewNormalizer(e.feed).ConvertToUSD(asset, req.Amount)
	if err != nil {
		return nil, err
	}
	if usd.Sign() == 0 {
		return nil, ErrInvalidOracleResult
	}
	if usd.Cmp(cfg.MinBuyUsd) < 0 {
		return nil, ErrBelowMinimum
	}
	if usd.Cmp(cfg.MaxBuyUsd) > 0 {
		return nil, ErrAboveMaximum
	}
	volume, err := TokenVolume(usd, cfg.RateUsd, scope.meta.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if volume.Sign() == 0 {
		return nil, ErrBelowMinimum
	}
	if volume.Cmp(cfg.RemainingQuantity) > 0 {
		return nil, ErrInsufficientSaleQuantity
	}
	inventory, err := scope.saleCustody.BalanceOf(scope.meta.SaleToken)
	if err != nil {
		return nil, err
	}
	if inventory.Cmp(volume) < 0 {
		return nil, ErrInsufficientInventory
	}

	// Mutation phase. Failures from here roll back with the transaction.
	if err := scope.saleCustody.Pull(req.Buyer, asset.Symbol, req.Amount); err != nil {
		return nil, err
	}
	if _, err := scope.registry.DebitQuantity(cfg.Type, volume, now); err != nil {
		return nil, err
	}
	record, err := scope.ledger.Record(&Contribution{
		User:        req.Buyer,
		SaleType:    cfg.Type,
		Asset:       asset.Symbol,
		UsdAmount:   usd,
		TokenVolume: volume,
		Timestamp:   now,
	})
	if err != nil {
		return nil, err
	}

	receipt := &PurchaseReceipt{
		SaleType:    cfg.Type,
		UsdAmount:   usd,
		TokenVolume: volume,
		Settlement:  cfg.Settlement,
	}
	pending := make([]coreevents.Event, 0, 4)

	switch cfg.Settlement {
	case SettleInstant:
		if req.Stake {
			index, err := scope.stake.Deposit(req.Buyer, scope.meta.SaleVault, volume, now)
			if err != nil {
				return nil, err
			}
			receipt.Staked = true
			receipt.StakeIndex = index
			position, err := scope.stake.Position(req.Buyer, index)
			if err != nil {
				return nil, err
			}
			pending = append(pending, coreevents.StakeCreated{
				Owner:     req.Buyer,
				Payer:     scope.meta.SaleVault,
				Index:     index,
				Principal: position.Principal,
				AprBps:    position.AprBps,
				StartTime: position.StartTime,
			})
		} else {
			if err := scope.saleCustody.Push(req.Buyer, scope.meta.SaleToken, volume); err != nil {
				return nil, err
			}
		}
	case SettleDeferred:
		// Tokens are not available yet, so stake-at-purchase is forced off.
		if err := scope.vault.Accrue(req.Buyer, cfg.Type, volume); err != nil {
			return nil, err
		}
	}

	if req.Referrer != zero && req.Referrer != req.Buyer {
		linked, err := scope.referral.AddReferral(req.Buyer, req.Referrer)
		if err != nil {
			return nil, err
		}
		if linked {
			pending = append(pending, coreevents.ReferralLinked{User: req.Buyer, Referrer: req.Referrer})
		}
		// First write wins: the reward is credited to the edge on record,
		// which may differ from req.Referrer on repeat purchases.
		dist, err := scope.referral.DistributeReward(req.Buyer, volume, cfg.Type)
		if err != nil {
			return nil, err
		}
		if dist != nil {
			pending = append(pending, coreevents.ReferralRewardAccrued{
				Referrer: dist.Referrer,
				Buyer:    req.Buyer,
				SaleType: cfg.Type,
				Amount:   dist.Amount,
				Deferred: dist.Deferred,
			})
		}
	}

	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	events := append([]coreevents.Event{coreevents.PurchaseRecorded{
		Buyer:       req.Buyer,
		SaleType:    cfg.Type,
		Asset:       asset.Symbol,
		UsdAmount:   record.UsdAmount,
		TokenVolume: record.TokenVolume,
		Settlement:  cfg.Settlement.String(),
		Staked:      receipt.Staked,
		Timestamp:   now,
	}}, pending...)
	e.emitAll(events)
	return receipt, nil
}

// --- deferred claims ---

// Claim settles the caller's entire outstanding deferred balance after the
// sale has ended, either as a direct payout or as a stake deposit on the
// claimer's behalf.
func (e *Engine) Claim(user [20]byte, saleType string, intoStake bool) (*big.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, translateGuardErr(err)
	}
	defer release()
	if err := common.Guard(pauseView{st: e.mgr}, pauseModule); err != nil {
		return nil, err
	}
	now := e.now()
	scope, err := e.begin()
	if err != nil {
		return nil, err
	}
	cfg, err := scope.registry.Sale(saleType)
	if err != nil {
		return nil, err
	}
	if cfg.Settlement != SettleDeferred {
		return nil, ErrWrongSettlementMode
	}
	if now < cfg.EndAt {
		return nil, ErrSaleNotEnded
	}
	delta, err := scope.vault.MarkClaimed(user, cfg.Type)
	if err != nil {
		return nil, err
	}
	pending := make([]coreevents.Event, 0, 2)
	if intoStake {
		index, err := scope.stake.Deposit(user, scope.meta.SaleVault, delta, now)
		if err != nil {
			return nil, err
		}
		position, err := scope.stake.Position(user, index)
		if err != nil {
			return nil, err
		}
		pending = append(pending, coreevents.StakeCreated{
			Owner:     user,
			Payer:     scope.meta.SaleVault,
			Index:     index,
			Principal: position.Principal,
			AprBps:    position.AprBps,
			StartTime: position.StartTime,
		})
	} else {
		if err := scope.saleCustody.Push(user, scope.meta.SaleToken, delta); err != nil {
			return nil, err
		}
	}
	if err := scope.tx.Commit(); err != nil {
		return nil, err
	}
	events := append([]coreevents.Event{coreevents.TokensClaimed{
		User:     user,
		SaleType: cfg.Type,
		Amount:   delta,
		Staked:   intoStake,
	}}, pending...)
	e.emitAll(events)
	return delta, nil
}

// Claimable reports the deferred balance for a (user, saleType) pair.
func (e *Engine) Claimable(user [20]byte, saleType string) (*Claimable, error) {
	return NewVault(e.mgr).Claimable(user, saleType)
}

// --- contribution reads ---

// ContributorSummary reports the running totals for a (user, saleType) pair.
func (e *Engine) ContributorSummary(user [20]byte, saleType string) (*ContributorSummary, error) {
	return NewLedger(e.mgr).Summary(user, saleType)
}

// Contributions returns the user's history slice [start, end) for the sale
// type.
func (e *Engine) Contributions(user [20]byte, saleType string, start, end uint64) ([]*Contribution, error) {
	return NewLedger(e.mgr).Range(user, saleType, start, end)
}

// ContributionCount reports the history length for a (user, saleType) pair.
func (e *Engine) ContributionCount(user [20]byte, saleType string) (uint64, error) {
	return NewLedger(e.mgr).HistoryLen(user, saleType)
}

// Contributors returns the contributor address slice [start, end) for the
// sale type.
func (e *Engine) Contributors(saleType string, start, end uint64) ([][20]byte, error) {
	return NewLedger(e.mgr).ContributorRange(saleType, start, end)
}

// ContributorCount reports the number of distinct contributors to a sale
// type.
func (e *Engine) ContributorCount(saleType string) (uint64, error) {
	return NewLedger(e.mgr).ContributorCount(saleType)
}
