package proxy

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bridgeproxy/core/events"
	"bridgeproxy/native/token"
	"bridgeproxy/state"
	"bridgeproxy/storage"
)

// ProviderCall is handed to the invoker when the engine forwards a dispatch
// to an external provider. Tokens is the state view of the in-flight
// operation: the callee pulls custodied funds through it, so anything it does
// is rolled back with the rest of the operation on failure.
type ProviderCall struct {
	Gateway [20]byte
	Router  [20]byte
	Data    []byte
	Asset   [20]byte
	Amount  *big.Int
	Value   *big.Int
	Custody [20]byte
	Tokens  *token.Ledger
}

// ProviderInvoker executes the opaque call against a provider gateway. The
// result is not interpreted beyond success or failure; consumption of the
// granted capacity is measured separately.
type ProviderInvoker interface {
	Invoke(call ProviderCall) error
}

// Engine orchestrates the fee ledger and provider dispatch sequence. Every
// mutating operation runs against a buffered storage overlay committed only
// on success, and is guarded by a single busy flag so an overlapping or
// reentrant invocation fails instead of interleaving with an unresolved
// external call.
type Engine struct {
	db       storage.Database
	custody  [20]byte
	invoker  ProviderInvoker
	external Whitelist
	emitter  events.Emitter
	nowFn    func() int64
	busy     atomic.Bool
}

// NewEngine creates a dispatch engine over the supplied database. The custody
// address is the account under which the engine holds pulled funds and
// accrued fees.
func NewEngine(db storage.Database, custody [20]byte) *Engine {
	return &Engine{
		db:      db,
		custody: custody,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetInvoker configures the provider call executor.
func (e *Engine) SetInvoker(invoker ProviderInvoker) { e.invoker = invoker }

// SetSharedWhitelist delegates availability checks to an externally hosted
// registry instead of the embedded state-backed set.
func (e *Engine) SetSharedWhitelist(w Whitelist) { e.external = w }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Custody returns the engine's custody address.
func (e *Engine) Custody() [20]byte { return e.custody }

// Tokens returns a token ledger over the engine's committed state. Useful for
// funding accounts and inspecting balances outside a dispatch.
func (e *Engine) Tokens() *token.Ledger {
	return token.NewLedger(state.NewManager(e.db))
}

type views struct {
	access    *AccessRegistry
	fees      *FeeConfig
	ledger    *FeeLedger
	tokens    *token.Ledger
	whitelist *StateWhitelist
}

func (e *Engine) viewsOver(db storage.Database) *views {
	st := state.NewManager(db)
	return &views{
		access:    NewAccessRegistry(st),
		fees:      NewFeeConfig(st),
		ledger:    NewFeeLedger(st),
		tokens:    token.NewLedger(st),
		whitelist: NewStateWhitelist(st),
	}
}

func (e *Engine) isAvailable(v *views, addr [20]byte) (bool, error) {
	if e.external != nil {
		return e.external.IsAvailable(addr)
	}
	return v.whitelist.IsAvailable(addr)
}

func (e *Engine) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrDispatchInProgress
	}
	return nil
}

func (e *Engine) end() { e.busy.Store(false) }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Setup seeds the proxy state: the admin, optional managers, the global fee
// defaults, the initial provider whitelist, and per-asset bounds. Assets,
// MinAmounts and MaxAmounts are parallel slices. Setup runs once; it fails
// ErrAlreadyInitialized as soon as an admin is seated.
func (e *Engine) Setup(cfg GenesisConfig) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if len(cfg.Assets) != len(cfg.MinAmounts) || len(cfg.Assets) != len(cfg.MaxAmounts) {
		return ErrLengthMismatch
	}
	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)
	seeded, err := v.access.hasAdmin()
	if err != nil {
		return err
	}
	if seeded {
		return ErrAlreadyInitialized
	}
	if err := v.access.setAdmin(cfg.Admin); err != nil {
		return err
	}
	for _, manager := range cfg.Managers {
		if err := v.access.GrantManager(cfg.Admin, manager); err != nil {
			return err
		}
	}
	if err := v.fees.setGlobal(cfg.PlatformFeeRate, cfg.FixedNativeFee); err != nil {
		return err
	}
	for _, provider := range cfg.Providers {
		if err := v.whitelist.Add(provider); err != nil {
			return err
		}
	}
	for i, asset := range cfg.Assets {
		min := cloneBigInt(cfg.MinAmounts[i])
		max := cloneBigInt(cfg.MaxAmounts[i])
		if min.Cmp(max) > 0 {
			return ErrMinMustBeLowerThanMax
		}
		if err := v.fees.putBounds(asset, min, max); err != nil {
			return err
		}
	}
	return ov.Commit()
}

// DispatchToken executes the fungible-asset path: the caller must have
// granted the custody account a spending allowance covering the input
// amount, and the attached native value must equal exactly the resolved
// fixed native fee.
func (e *Engine) DispatchToken(caller [20]byte, req Request, gateway [20]byte, callData []byte, value *big.Int) (*DispatchReceipt, error) {
	if e.invoker == nil {
		return nil, fmt.Errorf("proxy: provider invoker not configured")
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)

	if err := e.checkActive(v); err != nil {
		return nil, err
	}
	routerOK, err := e.isAvailable(v, req.Router)
	if err != nil {
		return nil, err
	}
	gatewayOK, err := e.isAvailable(v, gateway)
	if err != nil {
		return nil, err
	}
	if !routerOK || !gatewayOK {
		failed := &ProviderNotAvailableError{}
		if !routerOK {
			failed.Router = req.Router
		}
		if !gatewayOK {
			failed.Gateway = gateway
		}
		return nil, failed
	}
	if err := e.checkBounds(v, req.InputAsset, req.InputAmount); err != nil {
		return nil, err
	}
	eff, err := v.fees.Resolve(req.Integrator)
	if err != nil {
		return nil, err
	}
	if cmpValue(value, eff.FixedNativeFee) != 0 {
		return nil, fmt.Errorf("%w: need %s, got %s", ErrWrongNativeValue, eff.FixedNativeFee, valueString(value))
	}
	if eff.FixedNativeFee.Sign() > 0 {
		if err := v.tokens.Transfer(NativeAsset, caller, e.custody, eff.FixedNativeFee); err != nil {
			return nil, err
		}
	}

	// Pull the input into custody and measure what actually arrived so the
	// fee basis reflects transfer taxes.
	before, err := v.tokens.BalanceOf(req.InputAsset, e.custody)
	if err != nil {
		return nil, err
	}
	if err := v.tokens.TransferFrom(req.InputAsset, caller, e.custody, e.custody, req.InputAmount); err != nil {
		return nil, err
	}
	after, err := v.tokens.BalanceOf(req.InputAsset, e.custody)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)

	breakdown := ComputeFees(received, eff)

	capacity, err := grantCapacity(v.tokens, req.InputAsset, e.custody, req.Router, breakdown.PostFee)
	if err != nil {
		return nil, err
	}
	if err := e.invoker.Invoke(ProviderCall{
		Gateway: gateway,
		Router:  req.Router,
		Data:    callData,
		Asset:   req.InputAsset,
		Amount:  cloneBigInt(breakdown.PostFee),
		Custody: e.custody,
		Tokens:  v.tokens,
	}); err != nil {
		return nil, &ExternalCallError{Reason: err}
	}
	if err := capacity.Verify(); err != nil {
		return nil, err
	}

	if err := e.creditFees(v, req.InputAsset, req.Integrator, eff, breakdown); err != nil {
		return nil, err
	}

	receipt := e.newReceipt(false, req, gateway, received, breakdown)
	if err := ov.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewDispatchedEvent(receipt))
	return receipt, nil
}

// DispatchNative executes the native-currency path: the attached value must
// equal exactly the input amount plus the resolved fixed native fee, and the
// fee-adjusted amount is forwarded to the router as call value.
func (e *Engine) DispatchNative(caller [20]byte, req Request, callData []byte, value *big.Int) (*DispatchReceipt, error) {
	if e.invoker == nil {
		return nil, fmt.Errorf("proxy: provider invoker not configured")
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)

	if err := e.checkActive(v); err != nil {
		return nil, err
	}
	routerOK, err := e.isAvailable(v, req.Router)
	if err != nil {
		return nil, err
	}
	if !routerOK {
		return nil, &RouterNotAvailableError{Router: req.Router}
	}
	// Bounds follow the asset named in the route, not the native asset
	// that carries the value.
	if err := e.checkBounds(v, req.InputAsset, req.InputAmount); err != nil {
		return nil, err
	}
	eff, err := v.fees.Resolve(req.Integrator)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(cloneBigInt(req.InputAmount), eff.FixedNativeFee)
	if cmpValue(value, required) != 0 {
		return nil, fmt.Errorf("%w: need %s, got %s", ErrWrongNativeValue, required, valueString(value))
	}
	if err := v.tokens.Transfer(NativeAsset, caller, e.custody, required); err != nil {
		return nil, err
	}

	received := cloneBigInt(req.InputAmount)
	breakdown := ComputeFees(received, eff)

	if err := v.tokens.Transfer(NativeAsset, e.custody, req.Router, breakdown.PostFee); err != nil {
		return nil, err
	}
	if err := e.invoker.Invoke(ProviderCall{
		Gateway: req.Router,
		Router:  req.Router,
		Data:    callData,
		Asset:   NativeAsset,
		Value:   cloneBigInt(breakdown.PostFee),
		Custody: e.custody,
		Tokens:  v.tokens,
	}); err != nil {
		return nil, &ExternalCallError{Reason: err}
	}

	// Native token fees accrue under the native-asset ledger key.
	if err := e.creditFees(v, NativeAsset, req.Integrator, eff, breakdown); err != nil {
		return nil, err
	}

	receipt := e.newReceipt(true, req, req.Router, received, breakdown)
	if err := ov.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewDispatchedEvent(receipt))
	return receipt, nil
}

// CollectIntegratorFee drains the caller's own accrued fees for the asset to
// the caller's custody. Draining a zero balance succeeds and returns zero.
func (e *Engine) CollectIntegratorFee(caller [20]byte, asset [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return e.collect(asset, IntegratorBeneficiary(caller), caller, nil)
}

// CollectIntegratorFeeFor drains an integrator's accrued fees to the
// integrator's custody on its behalf. Manager only.
func (e *Engine) CollectIntegratorFeeFor(caller, integrator [20]byte, asset [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return e.collect(asset, IntegratorBeneficiary(integrator), integrator, func(v *views) error {
		return v.access.requireManager(caller)
	})
}

// CollectPlatformFee drains the platform's accrued fees for the asset to the
// supplied recipient. Manager or admin only.
func (e *Engine) CollectPlatformFee(caller [20]byte, asset, recipient [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return e.collect(asset, PlatformBeneficiary, recipient, func(v *views) error {
		return v.access.requireManagerOrAdmin(caller)
	})
}

func (e *Engine) collect(asset [20]byte, beneficiary Beneficiary, recipient [20]byte, gate func(*views) error) (*big.Int, error) {
	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)
	if gate != nil {
		if err := gate(v); err != nil {
			return nil, err
		}
	}
	amount, err := v.ledger.Drain(asset, beneficiary)
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		if err := v.tokens.Transfer(asset, e.custody, recipient, amount); err != nil {
			return nil, err
		}
	}
	if err := ov.Commit(); err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		e.emit(NewFeesCollectedEvent(asset, beneficiary, recipient, amount.String()))
	}
	return amount, nil
}

// SweepTokens transfers stray custody balance not owed to any beneficiary to
// the recipient. Admin only. Amounts promised by the fee ledger cannot be
// swept.
func (e *Engine) SweepTokens(caller [20]byte, asset [20]byte, amount *big.Int, recipient [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)
	if err := v.access.requireAdmin(caller); err != nil {
		return err
	}
	balance, err := v.tokens.BalanceOf(asset, e.custody)
	if err != nil {
		return err
	}
	outstanding, err := v.ledger.TotalOutstanding(asset)
	if err != nil {
		return err
	}
	free := new(big.Int).Sub(balance, outstanding)
	if amount == nil || amount.Sign() < 0 || amount.Cmp(free) > 0 {
		return ErrSweepExceedsFreeBalance
	}
	if err := v.tokens.Transfer(asset, e.custody, recipient, amount); err != nil {
		return err
	}
	if err := ov.Commit(); err != nil {
		return err
	}
	e.emit(NewSweptEvent(asset, amount.String(), recipient))
	return nil
}

// SetIntegratorInfo upserts an integrator fee profile. Manager only.
func (e *Engine) SetIntegratorInfo(caller, integrator [20]byte, profile IntegratorFeeProfile) error {
	return e.configure(caller, func(v *views) error {
		return v.fees.SetIntegratorProfile(integrator, profile)
	})
}

// SetMinTokenAmount updates the lower transfer bound for an asset. Manager
// only.
func (e *Engine) SetMinTokenAmount(caller [20]byte, asset [20]byte, value *big.Int) error {
	return e.configure(caller, func(v *views) error {
		return v.fees.SetMinTokenAmount(asset, value)
	})
}

// SetMaxTokenAmount updates the upper transfer bound for an asset. Manager
// only.
func (e *Engine) SetMaxTokenAmount(caller [20]byte, asset [20]byte, value *big.Int) error {
	return e.configure(caller, func(v *views) error {
		return v.fees.SetMaxTokenAmount(asset, value)
	})
}

// SetFixedNativeFee updates the global flat fee. Manager only.
func (e *Engine) SetFixedNativeFee(caller [20]byte, value *big.Int) error {
	return e.configure(caller, func(v *views) error {
		return v.fees.SetFixedNativeFee(value)
	})
}

// AddProvider approves a new external call target. Manager only. When a
// shared registry is configured the mutation is delegated to it.
func (e *Engine) AddProvider(caller, addr [20]byte) error {
	err := e.configure(caller, func(v *views) error {
		return e.mutableWhitelist(v).Add(addr)
	})
	if err != nil {
		return err
	}
	e.emit(NewProviderEvent(EventTypeProviderAdded, addr))
	return nil
}

// RemoveProvider withdraws approval for a call target. Manager only.
func (e *Engine) RemoveProvider(caller, addr [20]byte) error {
	err := e.configure(caller, func(v *views) error {
		return e.mutableWhitelist(v).Remove(addr)
	})
	if err != nil {
		return err
	}
	e.emit(NewProviderEvent(EventTypeProviderRemoved, addr))
	return nil
}

// PauseExecution halts dispatches. Manager or admin.
func (e *Engine) PauseExecution(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// UnpauseExecution resumes dispatches. Manager or admin.
func (e *Engine) UnpauseExecution(caller [20]byte) error {
	return e.setPaused(caller, false)
}

// GrantManager adds a manager identity. Admin only.
func (e *Engine) GrantManager(caller, id [20]byte) error {
	return e.mutate(func(v *views) error {
		return v.access.GrantManager(caller, id)
	})
}

// RevokeManager removes a manager identity. Admin only.
func (e *Engine) RevokeManager(caller, id [20]byte) error {
	return e.mutate(func(v *views) error {
		return v.access.RevokeManager(caller, id)
	})
}

// TransferAdmin hands the single admin seat to a new identity. Admin only.
func (e *Engine) TransferAdmin(caller, newAdmin [20]byte) error {
	return e.mutate(func(v *views) error {
		return v.access.TransferAdmin(caller, newAdmin)
	})
}

// --- read surface ---

// Admin returns the current admin identity.
func (e *Engine) Admin() ([20]byte, error) {
	return e.viewsOver(e.db).access.Admin()
}

// IsManager reports whether id holds the manager capability.
func (e *Engine) IsManager(id [20]byte) (bool, error) {
	return e.viewsOver(e.db).access.IsManager(id)
}

// IsPaused reports the execution pause state.
func (e *Engine) IsPaused() (bool, error) {
	return e.viewsOver(e.db).access.Paused()
}

// MinTokenAmount returns the configured lower bound for an asset.
func (e *Engine) MinTokenAmount(asset [20]byte) (*big.Int, error) {
	min, _, err := e.viewsOver(e.db).fees.Bounds(asset)
	return min, err
}

// MaxTokenAmount returns the configured upper bound for an asset.
func (e *Engine) MaxTokenAmount(asset [20]byte) (*big.Int, error) {
	_, max, err := e.viewsOver(e.db).fees.Bounds(asset)
	return max, err
}

// FixedNativeFee returns the global flat fee.
func (e *Engine) FixedNativeFee() (*big.Int, error) {
	return e.viewsOver(e.db).fees.FixedNativeFee()
}

// IntegratorProfile resolves the stored fee profile for an integrator.
func (e *Engine) IntegratorProfile(integrator [20]byte) (IntegratorFeeProfile, bool, error) {
	return e.viewsOver(e.db).fees.IntegratorProfile(integrator)
}

// Providers lists the embedded whitelist entries.
func (e *Engine) Providers() ([][20]byte, error) {
	v := e.viewsOver(e.db)
	if e.external != nil {
		if mutable, ok := e.external.(MutableWhitelist); ok {
			return mutable.Providers()
		}
		return nil, fmt.Errorf("proxy: shared whitelist does not enumerate providers")
	}
	return v.whitelist.Providers()
}

// PlatformFeeBalance returns the platform's accrued fees for an asset.
func (e *Engine) PlatformFeeBalance(asset [20]byte) (*big.Int, error) {
	return e.viewsOver(e.db).ledger.BalanceOf(asset, PlatformBeneficiary)
}

// IntegratorFeeBalance returns an integrator's accrued fees for an asset.
func (e *Engine) IntegratorFeeBalance(asset, integrator [20]byte) (*big.Int, error) {
	return e.viewsOver(e.db).ledger.BalanceOf(asset, IntegratorBeneficiary(integrator))
}

// --- internals ---

func (e *Engine) checkActive(v *views) error {
	paused, err := v.access.Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) checkBounds(v *views, asset [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("proxy: input amount required")
	}
	min, max, err := v.fees.Bounds(asset)
	if err != nil {
		return err
	}
	if amount.Cmp(min) < 0 || amount.Cmp(max) > 0 {
		return &AmountOutOfBoundsError{Amount: cloneBigInt(amount), Min: min, Max: max}
	}
	return nil
}

func (e *Engine) creditFees(v *views, asset, integrator [20]byte, eff EffectiveFees, breakdown FeeBreakdown) error {
	if err := v.ledger.Credit(asset, PlatformBeneficiary, breakdown.PlatformTokenFee); err != nil {
		return err
	}
	if err := v.ledger.Credit(NativeAsset, PlatformBeneficiary, breakdown.PlatformNativeFee); err != nil {
		return err
	}
	if !eff.IntegratorActive {
		return nil
	}
	beneficiary := IntegratorBeneficiary(integrator)
	if err := v.ledger.Credit(asset, beneficiary, breakdown.IntegratorTokenFee); err != nil {
		return err
	}
	return v.ledger.Credit(NativeAsset, beneficiary, breakdown.IntegratorNativeFee)
}

func (e *Engine) newReceipt(native bool, req Request, gateway [20]byte, received *big.Int, breakdown FeeBreakdown) *DispatchReceipt {
	return &DispatchReceipt{
		RequestID:      uuid.NewString(),
		Native:         native,
		InputAsset:     req.InputAsset,
		InputAmount:    cloneBigInt(req.InputAmount),
		ReceivedAmount: cloneBigInt(received),
		Fees:           breakdown,
		DstChainID:     req.DstChainID,
		Recipient:      req.Recipient,
		Integrator:     req.Integrator,
		Router:         req.Router,
		Gateway:        gateway,
		Timestamp:      e.nowFn(),
	}
}

func (e *Engine) configure(caller [20]byte, mutate func(*views) error) error {
	return e.mutate(func(v *views) error {
		if err := v.access.requireManager(caller); err != nil {
			return err
		}
		return mutate(v)
	})
}

func (e *Engine) mutate(fn func(*views) error) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	ov := storage.NewOverlay(e.db)
	v := e.viewsOver(ov)
	if err := fn(v); err != nil {
		return err
	}
	return ov.Commit()
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	err := e.mutate(func(v *views) error {
		return v.access.SetPaused(caller, paused)
	})
	if err != nil {
		return err
	}
	e.emit(NewPauseEvent(paused, caller))
	return nil
}

func (e *Engine) mutableWhitelist(v *views) MutableWhitelist {
	if e.external != nil {
		if mutable, ok := e.external.(MutableWhitelist); ok {
			return mutable
		}
		return unsupportedWhitelist{}
	}
	return v.whitelist
}

type unsupportedWhitelist struct{}

func (unsupportedWhitelist) IsAvailable([20]byte) (bool, error) {
	return false, fmt.Errorf("proxy: shared whitelist is read-only")
}

func (unsupportedWhitelist) Add([20]byte) error {
	return fmt.Errorf("proxy: shared whitelist is read-only")
}

func (unsupportedWhitelist) Remove([20]byte) error {
	return fmt.Errorf("proxy: shared whitelist is read-only")
}

func (unsupportedWhitelist) Providers() ([][20]byte, error) {
	return nil, fmt.Errorf("proxy: shared whitelist is read-only")
}

func cmpValue(value, required *big.Int) int {
	if value == nil {
		value = big.NewInt(0)
	}
	return value.Cmp(required)
}

func valueString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
