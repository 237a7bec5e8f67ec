package proxy

import (
	"fmt"
	"math/big"
	"strings"
)

type storedGlobalFees struct {
	PlatformFeeRate uint32
	FixedNativeFee  string
}

type storedBounds struct {
	Min string
	Max string
}

// FeeConfig stores the global fee defaults, per-integrator fee profiles and
// per-asset transfer bounds. Setters enforce the stored invariants; role
// gating happens in the engine.
type FeeConfig struct {
	store Storage
}

// NewFeeConfig binds the fee configuration to the supplied state view.
func NewFeeConfig(store Storage) *FeeConfig {
	return &FeeConfig{store: store}
}

func (f *FeeConfig) setGlobal(platformFeeRate uint32, fixedNativeFee *big.Int) error {
	if platformFeeRate > Denominator {
		return ErrFeeTooHigh
	}
	stored := storedGlobalFees{
		PlatformFeeRate: platformFeeRate,
		FixedNativeFee:  cloneBigInt(fixedNativeFee).String(),
	}
	return f.store.KVPut(globalFeeKeyBytes, stored)
}

func (f *FeeConfig) global() (uint32, *big.Int, error) {
	var stored storedGlobalFees
	ok, err := f.store.KVGet(globalFeeKeyBytes, &stored)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, big.NewInt(0), nil
	}
	fee, err := parseAmount(stored.FixedNativeFee)
	if err != nil {
		return 0, nil, err
	}
	return stored.PlatformFeeRate, fee, nil
}

// PlatformFeeRate returns the global default token fee rate.
func (f *FeeConfig) PlatformFeeRate() (uint32, error) {
	rate, _, err := f.global()
	return rate, err
}

// FixedNativeFee returns the global flat fee charged per dispatch.
func (f *FeeConfig) FixedNativeFee() (*big.Int, error) {
	_, fee, err := f.global()
	return fee, err
}

// SetFixedNativeFee updates the global flat fee.
func (f *FeeConfig) SetFixedNativeFee(value *big.Int) error {
	rate, _, err := f.global()
	if err != nil {
		return err
	}
	return f.setGlobal(rate, value)
}

// SetIntegratorProfile upserts the fee profile for an integrator. Fails when
// any rate exceeds the denominator. Profiles are never deleted; deactivate by
// upserting with IsIntegrator false.
func (f *FeeConfig) SetIntegratorProfile(integrator [20]byte, profile IntegratorFeeProfile) error {
	if profile.TokenFeeRate > Denominator {
		return ErrFeeTooHigh
	}
	if profile.PlatformTokenShare > Denominator || profile.PlatformNativeShare > Denominator {
		return ErrShareTooHigh
	}
	stored := storedIntegratorProfile{
		IsIntegrator:        profile.IsIntegrator,
		TokenFeeRate:        profile.TokenFeeRate,
		PlatformTokenShare:  profile.PlatformTokenShare,
		PlatformNativeShare: profile.PlatformNativeShare,
		FixedNativeFee:      cloneBigInt(profile.FixedNativeFee).String(),
	}
	return f.store.KVPut(integratorKey(integrator), stored)
}

// IntegratorProfile resolves the stored profile for an integrator.
func (f *FeeConfig) IntegratorProfile(integrator [20]byte) (IntegratorFeeProfile, bool, error) {
	var stored storedIntegratorProfile
	ok, err := f.store.KVGet(integratorKey(integrator), &stored)
	if err != nil || !ok {
		return IntegratorFeeProfile{}, ok, err
	}
	fee, err := parseAmount(stored.FixedNativeFee)
	if err != nil {
		return IntegratorFeeProfile{}, false, err
	}
	return IntegratorFeeProfile{
		IsIntegrator:        stored.IsIntegrator,
		TokenFeeRate:        stored.TokenFeeRate,
		PlatformTokenShare:  stored.PlatformTokenShare,
		PlatformNativeShare: stored.PlatformNativeShare,
		FixedNativeFee:      fee,
	}, true, nil
}

// SetMinTokenAmount updates the lower bound for an asset. The update is
// validated against the currently stored upper bound.
func (f *FeeConfig) SetMinTokenAmount(asset [20]byte, value *big.Int) error {
	_, max, err := f.Bounds(asset)
	if err != nil {
		return err
	}
	value = cloneBigInt(value)
	if value.Cmp(max) > 0 {
		return ErrMinMustBeLowerThanMax
	}
	return f.putBounds(asset, value, max)
}

// SetMaxTokenAmount updates the upper bound for an asset. The update is
// validated against the currently stored lower bound.
func (f *FeeConfig) SetMaxTokenAmount(asset [20]byte, value *big.Int) error {
	min, _, err := f.Bounds(asset)
	if err != nil {
		return err
	}
	value = cloneBigInt(value)
	if value.Cmp(min) < 0 {
		return ErrMaxMustBeBiggerThanMin
	}
	return f.putBounds(asset, min, value)
}

// Bounds returns the configured [min, max] window for an asset. Unset bounds
// read as zero.
func (f *FeeConfig) Bounds(asset [20]byte) (*big.Int, *big.Int, error) {
	var stored storedBounds
	ok, err := f.store.KVGet(boundsKey(asset), &stored)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return big.NewInt(0), big.NewInt(0), nil
	}
	min, err := parseAmount(stored.Min)
	if err != nil {
		return nil, nil, err
	}
	max, err := parseAmount(stored.Max)
	if err != nil {
		return nil, nil, err
	}
	return min, max, nil
}

func (f *FeeConfig) putBounds(asset [20]byte, min, max *big.Int) error {
	return f.store.KVPut(boundsKey(asset), storedBounds{Min: min.String(), Max: max.String()})
}

// Resolve determines the effective fee policy for a dispatch. An active
// integrator profile replaces the global defaults entirely, including the
// fixed native fee; otherwise the global rates apply with the full share
// routed to the platform.
func (f *FeeConfig) Resolve(integrator [20]byte) (EffectiveFees, error) {
	if integrator != ([20]byte{}) {
		profile, ok, err := f.IntegratorProfile(integrator)
		if err != nil {
			return EffectiveFees{}, err
		}
		if ok && profile.IsIntegrator {
			return EffectiveFees{
				TokenFeeRate:        profile.TokenFeeRate,
				PlatformTokenShare:  profile.PlatformTokenShare,
				PlatformNativeShare: profile.PlatformNativeShare,
				FixedNativeFee:      cloneBigInt(profile.FixedNativeFee),
				IntegratorActive:    true,
			}, nil
		}
	}
	rate, fixed, err := f.global()
	if err != nil {
		return EffectiveFees{}, err
	}
	return EffectiveFees{
		TokenFeeRate:        rate,
		PlatformTokenShare:  Denominator,
		PlatformNativeShare: Denominator,
		FixedNativeFee:      fixed,
	}, nil
}

// ComputeFees splits amount according to the resolved policy. Integer
// division remainders always fall to the integrator leg so the platform can
// never round itself extra units.
func ComputeFees(amount *big.Int, eff EffectiveFees) FeeBreakdown {
	amount = cloneBigInt(amount)
	denominator := big.NewInt(Denominator)

	tokenFee := new(big.Int).Mul(amount, big.NewInt(int64(eff.TokenFeeRate)))
	tokenFee.Div(tokenFee, denominator)
	postFee := new(big.Int).Sub(amount, tokenFee)

	platformTokenFee := new(big.Int).Mul(tokenFee, big.NewInt(int64(eff.PlatformTokenShare)))
	platformTokenFee.Div(platformTokenFee, denominator)
	integratorTokenFee := new(big.Int).Sub(tokenFee, platformTokenFee)

	nativeFee := cloneBigInt(eff.FixedNativeFee)
	platformNativeFee := new(big.Int).Mul(nativeFee, big.NewInt(int64(eff.PlatformNativeShare)))
	platformNativeFee.Div(platformNativeFee, denominator)
	integratorNativeFee := new(big.Int).Sub(nativeFee, platformNativeFee)

	return FeeBreakdown{
		TokenFee:            tokenFee,
		PostFee:             postFee,
		PlatformTokenFee:    platformTokenFee,
		IntegratorTokenFee:  integratorTokenFee,
		NativeFee:           nativeFee,
		PlatformNativeFee:   platformNativeFee,
		IntegratorNativeFee: integratorNativeFee,
	}
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("proxy: invalid stored amount %q", raw)
	}
	return amount, nil
}
