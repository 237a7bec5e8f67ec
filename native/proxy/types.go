package proxy

import (
	"math/big"

	"bridgeproxy/native/token"
)

// Denominator is the fixed scale against which all rate fractions are
// expressed. A rate of Denominator is 100%.
const Denominator = 1_000_000

// NativeAsset aliases the token layer's sentinel for the network's native
// currency. Native fee accruals are ledgered under this identifier.
var NativeAsset = token.NativeAsset

// Request describes a single swap or bridge dispatch. The router executes the
// transfer; callData handed alongside the request is forwarded opaquely to the
// gateway.
type Request struct {
	InputAsset      [20]byte
	InputAmount     *big.Int
	OutputAsset     [20]byte
	MinOutputAmount *big.Int
	DstChainID      uint64
	Recipient       [20]byte
	Integrator      [20]byte
	Router          [20]byte
}

// IntegratorFeeProfile is the per-integrator fee override. Rates are
// fractions of Denominator. Profiles are never deleted; deactivation flips
// IsIntegrator off, after which the global defaults apply to that caller.
type IntegratorFeeProfile struct {
	IsIntegrator        bool
	TokenFeeRate        uint32
	PlatformTokenShare  uint32
	PlatformNativeShare uint32
	FixedNativeFee      *big.Int
}

type storedIntegratorProfile struct {
	IsIntegrator        bool
	TokenFeeRate        uint32
	PlatformTokenShare  uint32
	PlatformNativeShare uint32
	FixedNativeFee      string
}

// EffectiveFees is the fee policy resolved for one dispatch: either the
// integrator's active profile or the global defaults with the full share
// routed to the platform.
type EffectiveFees struct {
	TokenFeeRate        uint32
	PlatformTokenShare  uint32
	PlatformNativeShare uint32
	FixedNativeFee      *big.Int
	IntegratorActive    bool
}

// FeeBreakdown is the exact split of one dispatch amount. Conservation holds
// by construction: TokenFee+PostFee equals the charged amount and both
// platform/integrator legs sum to their totals, with remainders always
// falling to the integrator side.
type FeeBreakdown struct {
	TokenFee            *big.Int
	PostFee             *big.Int
	PlatformTokenFee    *big.Int
	IntegratorTokenFee  *big.Int
	NativeFee           *big.Int
	PlatformNativeFee   *big.Int
	IntegratorNativeFee *big.Int
}

// BeneficiaryKind distinguishes ledger entries owed to the platform operator
// from those owed to a referring integrator.
type BeneficiaryKind uint8

const (
	BeneficiaryPlatform BeneficiaryKind = iota
	BeneficiaryIntegrator
)

// Beneficiary keys a fee ledger entry. Integrator is only meaningful for
// BeneficiaryIntegrator.
type Beneficiary struct {
	Kind       BeneficiaryKind
	Integrator [20]byte
}

// PlatformBeneficiary is the ledger key for operator-owed fees.
var PlatformBeneficiary = Beneficiary{Kind: BeneficiaryPlatform}

// IntegratorBeneficiary builds the ledger key for fees owed to an integrator.
func IntegratorBeneficiary(integrator [20]byte) Beneficiary {
	return Beneficiary{Kind: BeneficiaryIntegrator, Integrator: integrator}
}

// DispatchReceipt summarises a committed dispatch for callers and indexers.
type DispatchReceipt struct {
	RequestID      string
	Native         bool
	InputAsset     [20]byte
	InputAmount    *big.Int
	ReceivedAmount *big.Int
	Fees           FeeBreakdown
	DstChainID     uint64
	Recipient      [20]byte
	Integrator     [20]byte
	Router         [20]byte
	Gateway        [20]byte
	Timestamp      int64
}

// GenesisConfig seeds the proxy at construction time: the single admin, the
// global fee defaults, the initial provider whitelist, and per-asset bounds.
// Assets, MinAmounts and MaxAmounts are parallel slices.
type GenesisConfig struct {
	Admin           [20]byte
	Managers        [][20]byte
	PlatformFeeRate uint32
	FixedNativeFee  *big.Int
	Providers       [][20]byte
	Assets          [][20]byte
	MinAmounts      []*big.Int
	MaxAmounts      []*big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
