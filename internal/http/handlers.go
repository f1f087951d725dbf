package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/mongo"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/claims"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/config"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/idempotency"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/lifecycle"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/scan"
)

type Handlers struct {
	cfg       *config.Config
	claims    *claims.Service
	lifecycle *lifecycle.Service
	scanner   *scan.Service
	idemp     *idempotency.Idempotency
	audit     *mongoadapter.AuditLogger
}

func NewHandlers(cfg *config.Config, claimsSvc *claims.Service, lifecycleSvc *lifecycle.Service, scanner *scan.Service, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		claims:    claimsSvc,
		lifecycle: lifecycleSvc,
		scanner:   scanner,
		idemp:     idemp,
		audit:     audit,
	}
}

func (h *Handlers) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.claims.RequestChallenge(r.Context(), req.Email)
	if errors.Is(err, domain.ErrInvalidInput) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if errors.Is(err, domain.ErrChallengeThrottled) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"challenge_id": id})
}

func (h *Handlers) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.claims.VerifyChallenge(r.Context(), req.Email, req.Code)
	if errors.Is(err, domain.ErrVerificationFailed) {
		// Deliberately generic: never reveal whether the code was
		// wrong, expired, or absent.
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"verified": true})
}

func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID  uuid.UUID  `json:"event_id"`
		TierID   *uuid.UUID `json:"tier_id"`
		Attendee struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"attendee"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	attendee := domain.Attendee{Name: req.Attendee.Name, Email: req.Attendee.Email, Phone: req.Attendee.Phone}
	ticket, err := h.lifecycle.Claim(r.Context(), req.EventID, req.TierID, attendee, domain.PaymentMethod(req.PaymentMethod))
	switch {
	case errors.Is(err, domain.ErrEmailNotVerified):
		http.Error(w, "email not verified", http.StatusForbidden)
		return
	case errors.Is(err, domain.ErrCapacityExceeded):
		http.Error(w, "sold out", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrInactiveTier):
		http.Error(w, "tier not active", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "event or tier not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"ticket_id":      ticket.ID,
		"ticket_code":    ticket.Code,
		"payment_status": ticket.PaymentStatus,
		"created_at":     ticket.CreatedAt.Format(time.RFC3339),
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketID   uuid.UUID `json:"ticket_id"`
		PaymentRef string    `json:"payment_ref"`
		Status     string    `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A failed payment leaves the ticket pending; the sweeper ages it
	// out at the end of the grace window.
	if req.Status != "SUCCEEDED" {
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err := h.lifecycle.ConfirmOnlinePayment(r.Context(), req.TicketID, req.PaymentRef)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "ticket not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, "ticket not awaiting payment", http.StatusConflict)
		return
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, "missing payment_ref", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.scanner.Scan(r.Context(), req.Code, principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeScanResult(w, result)
}

func (h *Handlers) ConfirmCash(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	result, err := h.scanner.ConfirmCashAndValidate(r.Context(), ticketID, principal)
	if errors.Is(err, domain.ErrInvalidTransition) {
		http.Error(w, "ticket not awaiting cash payment", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeScanResult(w, result)
}

func (h *Handlers) Invalidate(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ticket, err := h.lifecycle.Invalidate(r.Context(), ticketID, principal)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "ticket not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "not the event organizer", http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket_id":    ticket.ID,
		"is_validated": ticket.IsValidated,
	})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var tierID *uuid.UUID
	if raw := r.URL.Query().Get("tier_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid tier_id", http.StatusBadRequest)
			return
		}
		tierID = &id
	}

	eventOK, tierOK, err := h.lifecycle.Availability(r.Context(), eventID, tierID)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "event or tier not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available":       eventOK && tierOK,
		"event_available": eventOK,
		"tier_available":  tierOK,
	})
}

func (h *Handlers) RecentScans(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "missing principal", http.StatusUnauthorized)
		return
	}

	limit := int64(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	scans, err := h.audit.RecentScans(r.Context(), principal, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scans": scans})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeScanResult(w http.ResponseWriter, result scan.Result) {
	resp := map[string]interface{}{"outcome": result.Outcome}
	if result.ValidatedAt != nil {
		resp["validated_at"] = result.ValidatedAt.Format(time.RFC3339)
	}
	if result.Ticket != nil {
		resp["ticket"] = map[string]interface{}{
			"ticket_id":      result.Ticket.ID,
			"ticket_code":    result.Ticket.Code,
			"attendee_name":  result.Ticket.Attendee.Name,
			"payment_status": result.Ticket.PaymentStatus,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
