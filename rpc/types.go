package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"bridgeproxy/native/proxy"
)

type dispatchRequest struct {
	Caller          string `json:"caller"`
	InputAsset      string `json:"inputAsset"`
	InputAmount     string `json:"inputAmount"`
	OutputAsset     string `json:"outputAsset,omitempty"`
	MinOutputAmount string `json:"minOutputAmount,omitempty"`
	DstChainID      uint64 `json:"dstChainId"`
	Recipient       string `json:"recipient"`
	Integrator      string `json:"integrator,omitempty"`
	Router          string `json:"router"`
	Gateway         string `json:"gateway,omitempty"`
	CallData        string `json:"callData,omitempty"`
	Value           string `json:"value"`
}

type collectRequest struct {
	Caller     string `json:"caller"`
	Integrator string `json:"integrator,omitempty"`
	Asset      string `json:"asset"`
	Recipient  string `json:"recipient,omitempty"`
}

type sweepRequest struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type integratorRequest struct {
	Caller              string `json:"caller"`
	Integrator          string `json:"integrator"`
	IsIntegrator        bool   `json:"isIntegrator"`
	TokenFeeRate        uint32 `json:"tokenFeeRate"`
	PlatformTokenShare  uint32 `json:"platformTokenShare"`
	PlatformNativeShare uint32 `json:"platformNativeShare"`
	FixedNativeFee      string `json:"fixedNativeFee"`
}

type boundRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset,omitempty"`
	Value  string `json:"value"`
}

type roleRequest struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
}

type providerRequest struct {
	Caller   string `json:"caller"`
	Provider string `json:"provider"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type receiptPayload struct {
	RequestID      string      `json:"requestId"`
	Native         bool        `json:"native"`
	InputAsset     string      `json:"inputAsset"`
	InputAmount    string      `json:"inputAmount"`
	ReceivedAmount string      `json:"receivedAmount"`
	Fees           feesPayload `json:"fees"`
	DstChainID     uint64      `json:"dstChainId"`
	Recipient      string      `json:"recipient"`
	Integrator     string      `json:"integrator,omitempty"`
	Router         string      `json:"router"`
	Gateway        string      `json:"gateway"`
	Timestamp      int64       `json:"timestamp"`
}

type feesPayload struct {
	TokenFee            string `json:"tokenFee"`
	PostFee             string `json:"postFee"`
	PlatformTokenFee    string `json:"platformTokenFee"`
	IntegratorTokenFee  string `json:"integratorTokenFee"`
	NativeFee           string `json:"nativeFee"`
	PlatformNativeFee   string `json:"platformNativeFee"`
	IntegratorNativeFee string `json:"integratorNativeFee"`
}

type collectPayload struct {
	Amount string `json:"amount"`
}

type statusPayload struct {
	Network string `json:"network"`
	Admin   string `json:"admin"`
	Paused  bool   `json:"paused"`
	Custody string `json:"custody"`
}

type feeConfigPayload struct {
	FixedNativeFee string `json:"fixedNativeFee"`
	Min            string `json:"min,omitempty"`
	Max            string `json:"max,omitempty"`
}

type integratorPayload struct {
	Known               bool   `json:"known"`
	IsIntegrator        bool   `json:"isIntegrator"`
	TokenFeeRate        uint32 `json:"tokenFeeRate"`
	PlatformTokenShare  uint32 `json:"platformTokenShare"`
	PlatformNativeShare uint32 `json:"platformNativeShare"`
	FixedNativeFee      string `json:"fixedNativeFee"`
}

type balancePayload struct {
	Platform   string `json:"platform"`
	Integrator string `json:"integrator,omitempty"`
}

func encodeReceipt(receipt *proxy.DispatchReceipt) receiptPayload {
	payload := receiptPayload{
		RequestID:      receipt.RequestID,
		Native:         receipt.Native,
		InputAsset:     encodeAddress(receipt.InputAsset),
		InputAmount:    receipt.InputAmount.String(),
		ReceivedAmount: receipt.ReceivedAmount.String(),
		Fees: feesPayload{
			TokenFee:            receipt.Fees.TokenFee.String(),
			PostFee:             receipt.Fees.PostFee.String(),
			PlatformTokenFee:    receipt.Fees.PlatformTokenFee.String(),
			IntegratorTokenFee:  receipt.Fees.IntegratorTokenFee.String(),
			NativeFee:           receipt.Fees.NativeFee.String(),
			PlatformNativeFee:   receipt.Fees.PlatformNativeFee.String(),
			IntegratorNativeFee: receipt.Fees.IntegratorNativeFee.String(),
		},
		DstChainID: receipt.DstChainID,
		Recipient:  encodeAddress(receipt.Recipient),
		Router:     encodeAddress(receipt.Router),
		Gateway:    encodeAddress(receipt.Gateway),
		Timestamp:  receipt.Timestamp,
	}
	if receipt.Integrator != ([20]byte{}) {
		payload.Integrator = encodeAddress(receipt.Integrator)
	}
	return payload
}

func encodeAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func parseAddress(field, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// parseOptionalAddress treats an empty string as the zero address, used for
// omitted integrators and the native asset.
func parseOptionalAddress(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return amount, nil
}

func parseCallData(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if trimmed == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("callData: %w", err)
	}
	return data, nil
}
