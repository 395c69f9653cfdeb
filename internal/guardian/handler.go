package guardian

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
	EnableControl(guardianID int64, dto *EnableControlDTO) (*Control, error)
	SetLimits(guardianID, controlID int64, dto *SetLimitsDTO) (*Control, error)
	LinkStudent(guardianID, controlID, studentID int64) error
	UnlinkStudent(guardianID, controlID, studentID int64) error
	GetControl(guardianID, controlID int64) (*Control, error)
	ListControls(guardianID int64) ([]*Control, error)
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

func (h *Handler) EnableControl(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto EnableControlDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("EnableControl: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	control, err := h.Service.EnableControl(actor.ID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, control)
}

func (h *Handler) SetLimits(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	controlID, err := h.controlIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid control ID")
		return
	}

	var dto SetLimitsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("SetLimits: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	control, err := h.Service.SetLimits(actor.ID, controlID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) LinkStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	controlID, err := h.controlIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid control ID")
		return
	}

	var dto LinkStudentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.LinkStudent(actor.ID, controlID, dto.StudentID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "student linked"})
}

func (h *Handler) UnlinkStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	controlID, err := h.controlIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid control ID")
		return
	}

	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	if err := h.Service.UnlinkStudent(actor.ID, controlID, studentID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "student unlinked"})
}

func (h *Handler) GetControl(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	controlID, err := h.controlIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid control ID")
		return
	}

	control, err := h.Service.GetControl(actor.ID, controlID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, control)
}

func (h *Handler) ListControls(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	controls, err := h.Service.ListControls(actor.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ControlListResponse{Controls: controls, Total: len(controls)})
}

func (h *Handler) controlIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
