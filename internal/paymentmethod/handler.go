package paymentmethod

import (
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
	AddMethod(ownerID int64, dto *AddMethodDTO) (*PaymentMethod, error)
	SetDefaultMethod(ownerID, methodID int64) (*PaymentMethod, error)
	RemoveMethod(ownerID, methodID int64) error
	ListMethods(ownerID int64) ([]*PaymentMethod, error)
	GetMethod(ownerID, methodID int64) (*PaymentMethod, error)
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

func (h *Handler) AddMethod(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto AddMethodDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("AddMethod: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	method, err := h.Service.AddMethod(actor.ID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, method)
}

func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	methodID, err := h.methodIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid payment method ID")
		return
	}

	method, err := h.Service.SetDefaultMethod(actor.ID, methodID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, method)
}

func (h *Handler) RemoveMethod(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	methodID, err := h.methodIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid payment method ID")
		return
	}

	if err := h.Service.RemoveMethod(actor.ID, methodID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "payment method removed"})
}

func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	methods, err := h.Service.ListMethods(actor.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MethodListResponse{Methods: methods, Total: len(methods)})
}

func (h *Handler) GetMethod(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	methodID, err := h.methodIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid payment method ID")
		return
	}

	method, err := h.Service.GetMethod(actor.ID, methodID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, method)
}

func (h *Handler) methodIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
