package proxy

import (
	"encoding/hex"
	"strconv"

	"bridgeproxy/core/events"
)

const (
	EventTypeDispatched      = "proxy.dispatched"
	EventTypeFeesCollected   = "proxy.fees.collected"
	EventTypeProviderAdded   = "proxy.provider.added"
	EventTypeProviderRemoved = "proxy.provider.removed"
	EventTypePaused          = "proxy.paused"
	EventTypeUnpaused        = "proxy.unpaused"
	EventTypeSwept           = "proxy.swept"
)

// NewDispatchedEvent returns the canonical record of a committed dispatch for
// off-chain indexing.
func NewDispatchedEvent(receipt *DispatchReceipt) events.Event {
	attrs := map[string]string{
		"requestId":   receipt.RequestID,
		"native":      strconv.FormatBool(receipt.Native),
		"inputAsset":  hex.EncodeToString(receipt.InputAsset[:]),
		"inputAmount": receipt.InputAmount.String(),
		"received":    receipt.ReceivedAmount.String(),
		"postFee":     receipt.Fees.PostFee.String(),
		"tokenFee":    receipt.Fees.TokenFee.String(),
		"nativeFee":   receipt.Fees.NativeFee.String(),
		"dstChainId":  strconv.FormatUint(receipt.DstChainID, 10),
		"recipient":   hex.EncodeToString(receipt.Recipient[:]),
		"router":      hex.EncodeToString(receipt.Router[:]),
		"gateway":     hex.EncodeToString(receipt.Gateway[:]),
		"timestamp":   strconv.FormatInt(receipt.Timestamp, 10),
	}
	if receipt.Integrator != ([20]byte{}) {
		attrs["integrator"] = hex.EncodeToString(receipt.Integrator[:])
	}
	return events.Event{Type: EventTypeDispatched, Attributes: attrs}
}

// NewFeesCollectedEvent records a ledger drain to a beneficiary's custody.
func NewFeesCollectedEvent(asset [20]byte, beneficiary Beneficiary, recipient [20]byte, amount string) events.Event {
	attrs := map[string]string{
		"asset":     hex.EncodeToString(asset[:]),
		"recipient": hex.EncodeToString(recipient[:]),
		"amount":    amount,
	}
	if beneficiary.Kind == BeneficiaryIntegrator {
		attrs["beneficiary"] = "integrator"
		attrs["integrator"] = hex.EncodeToString(beneficiary.Integrator[:])
	} else {
		attrs["beneficiary"] = "platform"
	}
	return events.Event{Type: EventTypeFeesCollected, Attributes: attrs}
}

// NewProviderEvent records a whitelist mutation.
func NewProviderEvent(eventType string, addr [20]byte) events.Event {
	return events.Event{Type: eventType, Attributes: map[string]string{
		"provider": hex.EncodeToString(addr[:]),
	}}
}

// NewPauseEvent records a pause state transition.
func NewPauseEvent(paused bool, caller [20]byte) events.Event {
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	return events.Event{Type: eventType, Attributes: map[string]string{
		"caller": hex.EncodeToString(caller[:]),
	}}
}

// NewSweptEvent records an emergency recovery transfer.
func NewSweptEvent(asset [20]byte, amount string, recipient [20]byte) events.Event {
	return events.Event{Type: EventTypeSwept, Attributes: map[string]string{
		"asset":     hex.EncodeToString(asset[:]),
		"amount":    amount,
		"recipient": hex.EncodeToString(recipient[:]),
	}}
}
