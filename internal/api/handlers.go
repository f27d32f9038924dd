// Package api exposes the warranty registry, claim tracker, and
// insurance subsystem over HTTP.
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/warrantyops/internal/domain"
	"github.com/punchamoorthee/warrantyops/internal/models"
	"github.com/punchamoorthee/warrantyops/internal/service"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warrantyops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warrantyops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	warranties *service.WarrantyService
	claims     *service.ClaimService
	insurance  *service.InsuranceService
	accounts   *service.AccountService
	logger     *slog.Logger
}

func NewHandler(w *service.WarrantyService, c *service.ClaimService, i *service.InsuranceService, a *service.AccountService, logger *slog.Logger) *Handler {
	return &Handler{warranties: w, claims: c, insurance: i, accounts: a, logger: logger}
}

// Register mounts all routes on the (already authenticated) subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/warranties", h.CreateWarranty).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}", h.GetWarranty).Methods("GET")
	r.HandleFunc("/warranties/{id:[0-9]+}/transfer", h.TransferOwnership).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/extend", h.ExtendExpiry).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/active", h.SetActive).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/maintenance", h.RecordMaintenance).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/maintenance", h.ListMaintenance).Methods("GET")
	r.HandleFunc("/warranties/{id:[0-9]+}/claim", h.FileClaim).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/claim", h.GetClaim).Methods("GET")
	r.HandleFunc("/warranties/{id:[0-9]+}/claim/resolve", h.ResolveClaim).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/warranties/{id:[0-9]+}/certificate", h.MintCertificate).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/certificate", h.GetCertificate).Methods("GET")
	r.HandleFunc("/warranties/{id:[0-9]+}/ratings", h.RateWarranty).Methods("POST")
	r.HandleFunc("/warranties/{id:[0-9]+}/ratings", h.ListRatings).Methods("GET")

	r.HandleFunc("/insurance/quote", h.Quote).Methods("GET")
	r.HandleFunc("/insurance/pool", h.PoolBalance).Methods("GET")
	r.HandleFunc("/insurance", h.PurchaseInsurance).Methods("POST")
	r.HandleFunc("/insurance/{id:[0-9]+}", h.GetPolicy).Methods("GET")
	r.HandleFunc("/insurance/{id:[0-9]+}/claim", h.FileInsuranceClaim).Methods("POST")
	r.HandleFunc("/insurance/{id:[0-9]+}/claim", h.GetInsuranceClaim).Methods("GET")
	r.HandleFunc("/insurance/{id:[0-9]+}/claim/process", h.ProcessInsuranceClaim).Methods("POST")
	r.HandleFunc("/insurance/{id:[0-9]+}/cancel", h.CancelInsurance).Methods("POST")

	r.HandleFunc("/accounts/{id}/deposit", h.Deposit).Methods("POST")
	r.HandleFunc("/accounts/{id}/entries", h.ListEntries).Methods("GET")
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
}

// ─── Warranty registry ──────────────────────────────────────────────────

func (h *Handler) CreateWarranty(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/warranties"))
	defer timer.ObserveDuration()

	var req models.CreateWarrantyRequest
	if !h.decode(w, r, &req, "POST", "/warranties") {
		return
	}
	if req.ProductID == "" || len(req.ProductID) > domain.MaxProductIDLen {
		h.respondError(w, http.StatusUnprocessableEntity, "product_id required, at most 128 chars", "POST", "/warranties")
		return
	}
	if req.Owner == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "owner required", "POST", "/warranties")
		return
	}
	if req.Duration < 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "duration must not be negative", "POST", "/warranties")
		return
	}

	warranty, err := h.warranties.Create(r.Context(), CallerFromContext(r.Context()), req.ProductID, req.Owner, req.Duration)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/warranties/%d", warranty.ID))
	h.respondJSON(w, http.StatusCreated, warranty, "POST", "/warranties")
}

func (h *Handler) GetWarranty(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	warranty, err := h.warranties.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, warranty, "GET", "/warranties/{id}")
}

func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req models.TransferOwnershipRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/transfer") {
		return
	}
	if req.NewOwner == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "new_owner required", "POST", "/warranties/{id}/transfer")
		return
	}
	warranty, err := h.warranties.Transfer(r.Context(), CallerFromContext(r.Context()), pathID(r), req.NewOwner)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/transfer")
		return
	}
	h.respondJSON(w, http.StatusOK, warranty, "POST", "/warranties/{id}/transfer")
}

func (h *Handler) ExtendExpiry(w http.ResponseWriter, r *http.Request) {
	var req models.ExtendExpiryRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/extend") {
		return
	}
	if req.ExtraDuration < 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "extra_duration must not be negative", "POST", "/warranties/{id}/extend")
		return
	}
	warranty, err := h.warranties.Extend(r.Context(), CallerFromContext(r.Context()), pathID(r), req.ExtraDuration)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/extend")
		return
	}
	h.respondJSON(w, http.StatusOK, warranty, "POST", "/warranties/{id}/extend")
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req models.SetActiveRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/active") {
		return
	}
	warranty, err := h.warranties.SetActive(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Active)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/active")
		return
	}
	h.respondJSON(w, http.StatusOK, warranty, "POST", "/warranties/{id}/active")
}

func (h *Handler) RecordMaintenance(w http.ResponseWriter, r *http.Request) {
	var req models.MaintenanceRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/maintenance") {
		return
	}
	if req.Description == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "description required", "POST", "/warranties/{id}/maintenance")
		return
	}
	rec, err := h.warranties.RecordMaintenance(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Description)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/maintenance")
		return
	}
	h.respondJSON(w, http.StatusCreated, rec, "POST", "/warranties/{id}/maintenance")
}

func (h *Handler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	recs, err := h.warranties.Maintenance(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}/maintenance")
		return
	}
	h.respondJSON(w, http.StatusOK, recs, "GET", "/warranties/{id}/maintenance")
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.warranties.Events(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}/events")
		return
	}
	h.respondJSON(w, http.StatusOK, events, "GET", "/warranties/{id}/events")
}

func (h *Handler) MintCertificate(w http.ResponseWriter, r *http.Request) {
	var req models.MintCertificateRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/certificate") {
		return
	}
	if req.MetadataURI == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "metadata_uri required", "POST", "/warranties/{id}/certificate")
		return
	}
	cert, err := h.warranties.MintCertificate(r.Context(), CallerFromContext(r.Context()), pathID(r), req.MetadataURI)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/certificate")
		return
	}
	h.respondJSON(w, http.StatusCreated, cert, "POST", "/warranties/{id}/certificate")
}

func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.warranties.Certificate(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}/certificate")
		return
	}
	h.respondJSON(w, http.StatusOK, cert, "GET", "/warranties/{id}/certificate")
}

func (h *Handler) RateWarranty(w http.ResponseWriter, r *http.Request) {
	var req models.RatingRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/ratings") {
		return
	}
	rating, err := h.warranties.Rate(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Score, req.Comment)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/ratings")
		return
	}
	h.respondJSON(w, http.StatusCreated, rating, "POST", "/warranties/{id}/ratings")
}

func (h *Handler) ListRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.warranties.Ratings(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}/ratings")
		return
	}
	h.respondJSON(w, http.StatusOK, ratings, "GET", "/warranties/{id}/ratings")
}

// ─── Claim tracker ──────────────────────────────────────────────────────

func (h *Handler) FileClaim(w http.ResponseWriter, r *http.Request) {
	var req models.FileClaimRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/claim") {
		return
	}
	if req.Description == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "description required", "POST", "/warranties/{id}/claim")
		return
	}
	claim, err := h.claims.File(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Description)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/claim")
		return
	}
	h.respondJSON(w, http.StatusCreated, claim, "POST", "/warranties/{id}/claim")
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.claims.Get(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/warranties/{id}/claim")
		return
	}
	h.respondJSON(w, http.StatusOK, claim, "GET", "/warranties/{id}/claim")
}

func (h *Handler) ResolveClaim(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveClaimRequest
	if !h.decode(w, r, &req, "POST", "/warranties/{id}/claim/resolve") {
		return
	}
	if req.Resolution == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "resolution required", "POST", "/warranties/{id}/claim/resolve")
		return
	}
	claim, err := h.claims.Resolve(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Resolution)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/warranties/{id}/claim/resolve")
		return
	}
	h.respondJSON(w, http.StatusOK, claim, "POST", "/warranties/{id}/claim/resolve")
}

// ─── Insurance subsystem ────────────────────────────────────────────────

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	coverage, err1 := strconv.ParseInt(r.URL.Query().Get("coverage_amount"), 10, 64)
	duration, err2 := strconv.ParseInt(r.URL.Query().Get("duration"), 10, 64)
	if err1 != nil || err2 != nil || coverage < 0 || duration < 0 {
		h.respondError(w, http.StatusBadRequest, "coverage_amount and duration query params required", "GET", "/insurance/quote")
		return
	}
	h.respondJSON(w, http.StatusOK, models.QuoteResponse{
		CoverageAmount: coverage,
		Duration:       duration,
		Premium:        service.CalculatePremium(coverage, duration),
	}, "GET", "/insurance/quote")
}

func (h *Handler) PurchaseInsurance(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/insurance"))
	defer timer.ObserveDuration()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/insurance")
		return
	}

	var req models.PurchaseInsuranceRequest
	body, ok := h.decodeRaw(w, r, &req, "POST", "/insurance")
	if !ok {
		return
	}
	if req.CoverageAmount <= 0 || req.Duration <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "positive coverage_amount and duration required", "POST", "/insurance")
		return
	}

	policy, replay, err := h.insurance.Purchase(r.Context(), CallerFromContext(r.Context()),
		req.WarrantyID, req.CoverageAmount, req.Duration, idempotencyKey, hashBody(body))
	if err != nil {
		h.respondServiceError(w, err, "POST", "/insurance")
		return
	}
	if replay != nil {
		httpRequestsTotal.WithLabelValues("POST", "/insurance", strconv.Itoa(replay.ResponseStatus)).Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(replay.ResponseStatus)
		w.Write(replay.ResponseBody)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/insurance/%d", policy.ID))
	h.respondJSON(w, http.StatusCreated, policy, "POST", "/insurance")
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.insurance.GetPolicy(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/insurance/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, policy, "GET", "/insurance/{id}")
}

func (h *Handler) FileInsuranceClaim(w http.ResponseWriter, r *http.Request) {
	var req models.InsuranceClaimRequest
	if !h.decode(w, r, &req, "POST", "/insurance/{id}/claim") {
		return
	}
	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "positive amount required", "POST", "/insurance/{id}/claim")
		return
	}
	claim, err := h.insurance.FileClaim(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Amount)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/insurance/{id}/claim")
		return
	}
	h.respondJSON(w, http.StatusCreated, claim, "POST", "/insurance/{id}/claim")
}

func (h *Handler) GetInsuranceClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.insurance.GetClaim(r.Context(), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/insurance/{id}/claim")
		return
	}
	h.respondJSON(w, http.StatusOK, claim, "GET", "/insurance/{id}/claim")
}

func (h *Handler) ProcessInsuranceClaim(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessClaimRequest
	if !h.decode(w, r, &req, "POST", "/insurance/{id}/claim/process") {
		return
	}
	claim, err := h.insurance.ProcessClaim(r.Context(), CallerFromContext(r.Context()), pathID(r), req.Approve)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/insurance/{id}/claim/process")
		return
	}
	h.respondJSON(w, http.StatusOK, claim, "POST", "/insurance/{id}/claim/process")
}

func (h *Handler) CancelInsurance(w http.ResponseWriter, r *http.Request) {
	policy, err := h.insurance.Cancel(r.Context(), CallerFromContext(r.Context()), pathID(r))
	if err != nil {
		h.respondServiceError(w, err, "POST", "/insurance/{id}/cancel")
		return
	}
	h.respondJSON(w, http.StatusOK, policy, "POST", "/insurance/{id}/cancel")
}

func (h *Handler) PoolBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.insurance.PoolBalance(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "GET", "/insurance/pool")
		return
	}
	h.respondJSON(w, http.StatusOK, models.PoolResponse{
		Account: h.insurance.PoolAccount(),
		Balance: balance,
	}, "GET", "/insurance/pool")
}

// ─── Accounts ───────────────────────────────────────────────────────────

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if !h.decode(w, r, &req, "POST", "/accounts/{id}/deposit") {
		return
	}
	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "positive amount required", "POST", "/accounts/{id}/deposit")
		return
	}
	transfer, err := h.accounts.Deposit(r.Context(), CallerFromContext(r.Context()), mux.Vars(r)["id"], req.Amount)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/accounts/{id}/deposit")
		return
	}
	h.respondJSON(w, http.StatusCreated, transfer, "POST", "/accounts/{id}/deposit")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accounts.ListEntries(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}/entries")
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", "/accounts/{id}/entries")
}

// ─── Helpers ────────────────────────────────────────────────────────────

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, method, endpoint string) bool {
	_, ok := h.decodeRaw(w, r, dst, method, endpoint)
	return ok
}

func (h *Handler) decodeRaw(w http.ResponseWriter, r *http.Request, dst any, method, endpoint string) ([]byte, bool) {
	body, err := readBody(r)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Stream read error", method, endpoint)
		return nil, false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", method, endpoint)
		return nil, false
	}
	return body, true
}

// respondServiceError maps the domain error taxonomy onto HTTP status
// codes. Unknown errors are logged and reported as 500 without leaking
// internals.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized):
		h.respondError(w, http.StatusForbidden, "Not authorized", method, endpoint)
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, domain.ErrExpiredOrInactive):
		h.respondError(w, http.StatusUnprocessableEntity, "Expired or inactive", method, endpoint)
	case errors.Is(err, domain.ErrInvalidClaim):
		h.respondError(w, http.StatusUnprocessableEntity, "Invalid claim", method, endpoint)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, domain.ErrClaimAlreadyProcessed):
		h.respondError(w, http.StatusConflict, "Claim already processed", method, endpoint)
	case errors.Is(err, domain.ErrAlreadyExists):
		h.respondError(w, http.StatusConflict, "Already exists", method, endpoint)
	case errors.Is(err, store.ErrIdempotencyConflict):
		h.respondError(w, http.StatusConflict, "Request processing in progress", method, endpoint)
	case errors.Is(err, service.ErrIdempotencyMismatch):
		h.respondError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload", method, endpoint)
	default:
		h.logger.Error("internal error", "method", method, "endpoint", endpoint, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message string, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

// respondWithError is the middleware-level variant used before a Handler
// exists on the request path.
func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
