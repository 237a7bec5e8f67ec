package rpc

import (
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bridgeproxy/native/proxy"
	"bridgeproxy/native/token"
)

func (s *Server) handleDispatchToken(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, false)
}

func (s *Server) handleDispatchNative(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, true)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, native bool) {
	var req dispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, request, gateway, callData, value, err := parseDispatch(req, native)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	path := "token"
	if native {
		path = "native"
	}
	start := time.Now()
	var receipt *proxy.DispatchReceipt
	if native {
		receipt, err = s.engine.DispatchNative(caller, request, callData, value)
	} else {
		receipt, err = s.engine.DispatchToken(caller, request, gateway, callData, value)
	}
	s.metrics.ObserveDispatch(path, err, time.Since(start))
	if err != nil {
		s.engineError(w, "dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeReceipt(receipt))
}

func parseDispatch(req dispatchRequest, native bool) (caller [20]byte, request proxy.Request, gateway [20]byte, callData []byte, value *big.Int, err error) {
	if caller, err = parseAddress("caller", req.Caller); err != nil {
		return
	}
	if request.InputAsset, err = parseOptionalAddress("inputAsset", req.InputAsset); err != nil {
		return
	}
	if request.InputAmount, err = parseAmount("inputAmount", req.InputAmount); err != nil {
		return
	}
	if request.OutputAsset, err = parseOptionalAddress("outputAsset", req.OutputAsset); err != nil {
		return
	}
	if request.MinOutputAmount, err = parseAmount("minOutputAmount", req.MinOutputAmount); err != nil {
		return
	}
	request.DstChainID = req.DstChainID
	if request.Recipient, err = parseAddress("recipient", req.Recipient); err != nil {
		return
	}
	if request.Integrator, err = parseOptionalAddress("integrator", req.Integrator); err != nil {
		return
	}
	if request.Router, err = parseAddress("router", req.Router); err != nil {
		return
	}
	if !native {
		if gateway, err = parseAddress("gateway", req.Gateway); err != nil {
			return
		}
	}
	if callData, err = parseCallData(req.CallData); err != nil {
		return
	}
	value, err = parseAmount("value", req.Value)
	return
}

func (s *Server) handleCollectIntegrator(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseOptionalAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := s.engine.CollectIntegratorFee(caller, asset)
	if err != nil {
		s.engineError(w, "collect integrator", err)
		return
	}
	if amount.Sign() > 0 {
		s.metrics.ObserveCollection("integrator")
	}
	writeJSON(w, http.StatusOK, collectPayload{Amount: amount.String()})
}

func (s *Server) handleCollectIntegratorFor(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	integrator, err := parseAddress("integrator", req.Integrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseOptionalAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := s.engine.CollectIntegratorFeeFor(caller, integrator, asset)
	if err != nil {
		s.engineError(w, "collect integrator for", err)
		return
	}
	if amount.Sign() > 0 {
		s.metrics.ObserveCollection("integrator")
	}
	writeJSON(w, http.StatusOK, collectPayload{Amount: amount.String()})
}

func (s *Server) handleCollectPlatform(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseOptionalAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := s.engine.CollectPlatformFee(caller, asset, recipient)
	if err != nil {
		s.engineError(w, "collect platform", err)
		return
	}
	if amount.Sign() > 0 {
		s.metrics.ObserveCollection("platform")
	}
	writeJSON(w, http.StatusOK, collectPayload{Amount: amount.String()})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseOptionalAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SweepTokens(caller, asset, amount, recipient); err != nil {
		s.engineError(w, "sweep", err)
		return
	}
	s.metrics.ObserveSweep()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.pause(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.pause(w, r, false)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request, paused bool) {
	var req callerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if paused {
		err = s.engine.PauseExecution(caller)
	} else {
		err = s.engine.UnpauseExecution(caller)
	}
	if err != nil {
		s.engineError(w, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSetIntegrator(w http.ResponseWriter, r *http.Request) {
	var req integratorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	integrator, err := parseAddress("integrator", req.Integrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fixedFee, err := parseAmount("fixedNativeFee", req.FixedNativeFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile := proxy.IntegratorFeeProfile{
		IsIntegrator:        req.IsIntegrator,
		TokenFeeRate:        req.TokenFeeRate,
		PlatformTokenShare:  req.PlatformTokenShare,
		PlatformNativeShare: req.PlatformNativeShare,
		FixedNativeFee:      fixedFee,
	}
	if err := s.engine.SetIntegratorInfo(caller, integrator, profile); err != nil {
		s.engineError(w, "set integrator", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSetMin(w http.ResponseWriter, r *http.Request) {
	s.setBound(w, r, s.engine.SetMinTokenAmount)
}

func (s *Server) handleSetMax(w http.ResponseWriter, r *http.Request) {
	s.setBound(w, r, s.engine.SetMaxTokenAmount)
}

func (s *Server) setBound(w http.ResponseWriter, r *http.Request, apply func([20]byte, [20]byte, *big.Int) error) {
	var req boundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseOptionalAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := apply(caller, asset, value); err != nil {
		s.engineError(w, "set bound", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSetFixedFee(w http.ResponseWriter, r *http.Request) {
	var req boundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFixedNativeFee(caller, value); err != nil {
		s.engineError(w, "set fixed fee", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	s.mutateProvider(w, r, s.engine.AddProvider)
}

func (s *Server) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	s.mutateProvider(w, r, s.engine.RemoveProvider)
}

func (s *Server) mutateProvider(w http.ResponseWriter, r *http.Request, apply func([20]byte, [20]byte) error) {
	var req providerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	provider, err := parseAddress("provider", req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := apply(caller, provider); err != nil {
		s.engineError(w, "mutate provider", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGrantManager(w http.ResponseWriter, r *http.Request) {
	s.mutateRole(w, r, s.engine.GrantManager)
}

func (s *Server) handleRevokeManager(w http.ResponseWriter, r *http.Request) {
	s.mutateRole(w, r, s.engine.RevokeManager)
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	s.mutateRole(w, r, s.engine.TransferAdmin)
}

func (s *Server) mutateRole(w http.ResponseWriter, r *http.Request, apply func([20]byte, [20]byte) error) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target, err := parseOptionalAddress("target", req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := apply(caller, target); err != nil {
		s.engineError(w, "mutate role", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := s.engine.Admin()
	if err != nil {
		s.engineError(w, "status", err)
		return
	}
	paused, err := s.engine.IsPaused()
	if err != nil {
		s.engineError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, statusPayload{
		Network: s.network,
		Admin:   encodeAddress(admin),
		Paused:  paused,
		Custody: encodeAddress(s.engine.Custody()),
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.engine.Providers()
	if err != nil {
		s.engineError(w, "providers", err)
		return
	}
	encoded := make([]string, 0, len(providers))
	for _, provider := range providers {
		encoded = append(encoded, encodeAddress(provider))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": encoded})
}

func (s *Server) handleFeeConfig(w http.ResponseWriter, r *http.Request) {
	fee, err := s.engine.FixedNativeFee()
	if err != nil {
		s.engineError(w, "fee config", err)
		return
	}
	payload := feeConfigPayload{FixedNativeFee: fee.String()}
	if raw := r.URL.Query().Get("asset"); raw != "" {
		asset, err := parseAddress("asset", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		min, err := s.engine.MinTokenAmount(asset)
		if err != nil {
			s.engineError(w, "fee config", err)
			return
		}
		max, err := s.engine.MaxTokenAmount(asset)
		if err != nil {
			s.engineError(w, "fee config", err)
			return
		}
		payload.Min = min.String()
		payload.Max = max.String()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleFeeBalance(w http.ResponseWriter, r *http.Request) {
	asset := token.NativeAsset
	if raw := r.URL.Query().Get("asset"); raw != "" {
		parsed, err := parseAddress("asset", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		asset = parsed
	}
	platform, err := s.engine.PlatformFeeBalance(asset)
	if err != nil {
		s.engineError(w, "fee balance", err)
		return
	}
	payload := balancePayload{Platform: platform.String()}
	if raw := r.URL.Query().Get("integrator"); raw != "" {
		integrator, err := parseAddress("integrator", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		balance, err := s.engine.IntegratorFeeBalance(asset, integrator)
		if err != nil {
			s.engineError(w, "fee balance", err)
			return
		}
		payload.Integrator = balance.String()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleIntegrator(w http.ResponseWriter, r *http.Request) {
	integrator, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, known, err := s.engine.IntegratorProfile(integrator)
	if err != nil {
		s.engineError(w, "integrator", err)
		return
	}
	payload := integratorPayload{Known: known}
	if known {
		payload.IsIntegrator = profile.IsIntegrator
		payload.TokenFeeRate = profile.TokenFeeRate
		payload.PlatformTokenShare = profile.PlatformTokenShare
		payload.PlatformNativeShare = profile.PlatformNativeShare
		payload.FixedNativeFee = profile.FixedNativeFee.String()
	}
	writeJSON(w, http.StatusOK, payload)
}
