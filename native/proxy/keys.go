package proxy

import "encoding/hex"

// Storage abstracts the subset of state manager functionality required by the
// proxy components.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	adminKeyBytes     = []byte("proxy/roles/admin")
	managersKeyBytes  = []byte("proxy/roles/managers")
	pausedKeyBytes    = []byte("proxy/paused")
	globalFeeKeyBytes = []byte("proxy/fees/global")

	integratorPrefix = []byte("proxy/fees/integrator/")
	boundsPrefix     = []byte("proxy/fees/bounds/")

	whitelistIndexKeyBytes = []byte("proxy/whitelist/index")

	ledgerPlatformPrefix   = []byte("proxy/ledger/platform/")
	ledgerIntegratorPrefix = []byte("proxy/ledger/integrator/")
	ledgerTotalPrefix      = []byte("proxy/ledger/total/")
)

func integratorKey(integrator [20]byte) []byte {
	return keyWith(integratorPrefix, integrator[:])
}

func boundsKey(asset [20]byte) []byte {
	return keyWith(boundsPrefix, asset[:])
}

func ledgerPlatformKey(asset [20]byte) []byte {
	return keyWith(ledgerPlatformPrefix, asset[:])
}

func ledgerIntegratorKey(asset, integrator [20]byte) []byte {
	return keyWith(keyWith(ledgerIntegratorPrefix, asset[:]), integrator[:])
}

func ledgerTotalKey(asset [20]byte) []byte {
	return keyWith(ledgerTotalPrefix, asset[:])
}

func keyWith(prefix []byte, raw []byte) []byte {
	buf := make([]byte, len(prefix), len(prefix)+hex.EncodedLen(len(raw))+1)
	copy(buf, prefix)
	buf = append(buf, hex.EncodeToString(raw)...)
	buf = append(buf, '/')
	return buf
}
