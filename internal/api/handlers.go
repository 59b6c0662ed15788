package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "vsme-guru/internal/common/errors"
	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/models"
	"vsme-guru/internal/wizard/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Registry *Registry
	Checkers map[string]Checker
	Logger   logger.Logger
}

// Handler serves the wizard REST API.
type Handler struct {
	registry *Registry
	checkers map[string]Checker
	validate *validator.Validate
	errors   *apperrors.ErrorHandler
	log      logger.Logger
}

func NewHandler(deps Dependencies) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Handler{
		registry: deps.Registry,
		checkers: deps.Checkers,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		errors:   apperrors.NewErrorHandler(log),
		log:      log,
	}
}

// ==========================
// Request and response bodies
// ==========================

type updateFieldRequest struct {
	Value *json.RawMessage `json:"value" validate:"required"`
}

type goToStepRequest struct {
	Step int `json:"step" validate:"required,min=1"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	engine.State
}

type moveResponse struct {
	Moved bool `json:"moved"`
	sessionResponse
}

type validateResponse struct {
	Valid bool `json:"valid"`
	sessionResponse
}

// ==========================
// Health and auth
// ==========================

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	for name, c := range h.checkers {
		if err := c.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

// NotImplemented answers the placeholder auth endpoints.
func (h *Handler) NotImplemented(w http.ResponseWriter, r *http.Request) {
	h.errors.WriteError(w, r, apperrors.NewNotImplementedError())
}

// ==========================
// Wizard sessions
// ==========================

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, e, err := h.registry.Create(r.Context())
	if err != nil {
		h.errors.WriteError(w, r, apperrors.NewStorageUnavailableError(err))
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id, State: e.State()})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: e.State()})
}

func (h *Handler) PatchData(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch map[string]interface{}
	if !h.decode(w, r, &patch) {
		return
	}
	if err := h.validate.Var(patch, "required,min=1"); err != nil {
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError("patch must contain at least one field"))
		return
	}
	if err := e.UpdateFormData(patch); err != nil {
		h.engineError(w, r, e, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: e.State()})
}

func (h *Handler) PutField(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}

	var req updateFieldRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	var value interface{}
	if err := json.Unmarshal(*req.Value, &value); err != nil {
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	if err := e.UpdateField(chi.URLParam(r, "name"), value); err != nil {
		h.engineError(w, r, e, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: e.State()})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}
	valid := e.ValidateCurrentStep()
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:           valid,
		sessionResponse: sessionResponse{SessionID: id, State: e.State()},
	})
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}
	moved := e.GoToNextStep(r.Context())
	writeJSON(w, http.StatusOK, moveResponse{
		Moved:           moved,
		sessionResponse: sessionResponse{SessionID: id, State: e.State()},
	})
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}
	moved := e.GoToPreviousStep(r.Context())
	writeJSON(w, http.StatusOK, moveResponse{
		Moved:           moved,
		sessionResponse: sessionResponse{SessionID: id, State: e.State()},
	})
}

func (h *Handler) GoToStep(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}

	var req goToStepRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := e.GoToStep(r.Context(), req.Step); err != nil {
		if errors.Is(err, engine.ErrStepOutOfRange) {
			h.errors.WriteError(w, r, apperrors.NewInvalidStepError(req.Step, e.TotalSteps()))
			return
		}
		h.engineError(w, r, e, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{
		Moved:           true,
		sessionResponse: sessionResponse{SessionID: id, State: e.State()},
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}

	result := e.Submit(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = apperrors.HTTPStatus(result.Code)
	}
	h.log.Info("Submission handled", map[string]interface{}{
		"sessionId": id,
		"success":   result.Success,
		"code":      string(result.Code),
	})
	writeJSON(w, status, result)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.session(w, r)
	if !ok {
		return
	}
	e.Reset(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: e.State()})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		h.errors.WriteError(w, r, apperrors.NewSessionNotFoundError(id))
		return
	}
	if err := h.registry.Remove(r.Context(), id); err != nil {
		h.sessionError(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// Helpers
// ==========================

// session resolves the {id} URL parameter. It writes the error response and
// returns false when the session cannot be found.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, *engine.Engine, bool) {
	id := chi.URLParam(r, "id")
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		h.errors.WriteError(w, r, apperrors.NewSessionNotFoundError(id))
		return "", nil, false
	}
	e, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.sessionError(w, r, id, err)
		return "", nil, false
	}
	return id, e, true
}

func (h *Handler) sessionError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		h.errors.WriteError(w, r, apperrors.NewSessionNotFoundError(id))
		return
	}
	h.errors.WriteError(w, r, apperrors.NewStorageUnavailableError(err))
}

func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, e *engine.Engine, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownField), errors.Is(err, models.ErrInvalidValue):
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError(err.Error()))
	case errors.Is(err, engine.ErrStepOutOfRange):
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError(
			fmt.Sprintf("%v (steps 1..%d)", err, e.TotalSteps())))
	default:
		h.errors.WriteError(w, r, err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError("malformed JSON body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !h.decode(w, r, dst) {
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.errors.WriteError(w, r, apperrors.NewInvalidRequestError(validationDetails(err)))
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
