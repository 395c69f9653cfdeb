package subscription

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
	CreatePlan(dto *CreatePlanDTO) (*Plan, error)
	ListPlans() ([]*Plan, error)
	GetPlan(id int64) (*Plan, error)
	DeactivatePlan(id int64) error

	Subscribe(ctx context.Context, ownerID int64, dto *SubscribeDTO) (*Subscription, error)
	Cancel(ctx context.Context, ownerID, subscriptionID int64, dto *CancelDTO) (*Subscription, error)
	Reactivate(ctx context.Context, ownerID, subscriptionID int64) (*Subscription, error)
	ConsumeSessionCredit(ownerID, subscriptionID int64) (*Subscription, error)
	GetSubscription(ownerID, subscriptionID int64, isAdmin bool) (*Subscription, error)
	ListSubscriptions(ownerID int64) ([]*Subscription, error)
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

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "admin access required")
		return
	}

	var dto CreatePlanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreatePlan: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.Service.CreatePlan(&dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, plan)
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Service.ListPlans()
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PlanListResponse{Plans: plans, Total: len(plans)})
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid plan ID")
		return
	}

	plan, err := h.Service.GetPlan(planID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, plan)
}

func (h *Handler) DeactivatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		h.WriteError(w, http.StatusForbidden, "admin access required")
		return
	}

	planID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid plan ID")
		return
	}

	if err := h.Service.DeactivatePlan(planID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "plan deactivated"})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto SubscribeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("Subscribe: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.Service.Subscribe(r.Context(), actor.ID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, sub)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subscriptionID, err := h.subscriptionIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	var dto CancelDTO
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}

	sub, err := h.Service.Cancel(r.Context(), actor.ID, subscriptionID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subscriptionID, err := h.subscriptionIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, err := h.Service.Reactivate(r.Context(), actor.ID, subscriptionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) ConsumeSessionCredit(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subscriptionID, err := h.subscriptionIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, err := h.Service.ConsumeSessionCredit(actor.ID, subscriptionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subscriptionID, err := h.subscriptionIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, err := h.Service.GetSubscription(actor.ID, subscriptionID, actor.IsAdmin())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subs, err := h.Service.ListSubscriptions(actor.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, SubscriptionListResponse{Subscriptions: subs, Total: len(subs)})
}

func (h *Handler) subscriptionIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
