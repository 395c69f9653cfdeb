package refund

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	core "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/transport"
	"github.com/frahmantamala/tutor-billing/pkg/logger"
)

type ServiceAPI interface {
	Request(ctx context.Context, requesterID int64, dto *RequestRefundDTO) (*RefundRequest, error)
	Decide(ctx context.Context, adminID, refundID int64, dto *DecideRefundDTO) (*RefundRequest, error)
	Process(ctx context.Context, refundID int64) (*RefundRequest, error)
	Cancel(requesterID, refundID int64) (*RefundRequest, error)
	Get(actorID, refundID int64, isAdmin bool) (*RefundRequest, error)
	ListMine(requesterID int64) ([]*RefundRequest, error)
	ListPending() ([]*RefundRequest, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto RequestRefundDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RequestRefund: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.Service.Request(r.Context(), actor.ID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) DecideRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "admin access required")
		return
	}

	refundID, err := h.refundIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid refund ID")
		return
	}

	var dto DecideRefundDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("DecideRefund: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	request, err := h.Service.Decide(r.Context(), actor.ID, refundID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

// ProcessRefund retries processing for an approved request whose
// earlier processor call failed.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "admin access required")
		return
	}

	refundID, err := h.refundIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid refund ID")
		return
	}

	request, err := h.Service.Process(r.Context(), refundID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) CancelRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	refundID, err := h.refundIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid refund ID")
		return
	}

	request, err := h.Service.Cancel(actor.ID, refundID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	refundID, err := h.refundIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid refund ID")
		return
	}

	request, err := h.Service.Get(actor.ID, refundID, actor.IsAdmin())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) ListMyRefunds(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.Service.ListMine(actor.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RefundListResponse{Refunds: requests, Total: len(requests)})
}

func (h *Handler) ListPendingRefunds(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "admin access required")
		return
	}

	requests, err := h.Service.ListPending()
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RefundListResponse{Refunds: requests, Total: len(requests)})
}

func (h *Handler) refundIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
