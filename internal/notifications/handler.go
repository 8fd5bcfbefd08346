package notifications

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aprendia/notification-service/internal/pkg/httputil"
)

// NotificationRequest is the body of POST /notifications. One endpoint covers
// both immediate sends and queue draining, selected by mode.
type NotificationRequest struct {
	Mode     string          `json:"mode" validate:"omitempty,oneof=send process-queue"`
	UserID   string          `json:"userId"`
	Template string          `json:"template"`
	Payload  json.RawMessage `json:"payload"`
	To       string          `json:"to" validate:"omitempty,email"`
	// QueueID is accepted for compatibility with older callers but ignored:
	// queue entries are always drained in scheduled order.
	QueueID   string `json:"queueId"`
	BatchSize any    `json:"batchSize"`
	DryRun    bool   `json:"dryRun"`
}

// Handler exposes the notification HTTP API.
type Handler struct {
	service   *Service
	processor *Processor
	validate  *validator.Validate
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service, processor *Processor) *Handler {
	return &Handler{
		service:   service,
		processor: processor,
		validate:  validator.New(),
	}
}

// Routes registers notification routes on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications", h.Dispatch)
}

var sendErrorMappings = []httputil.ErrorMapping{
	{Error: ErrUnsupportedTemplate, Status: http.StatusBadRequest},
	{Error: ErrInvalidPayload, Status: http.StatusBadRequest},
	{Error: ErrRecipientNotFound, Status: http.StatusInternalServerError, Message: "no recipient email found"},
}

// Dispatch routes a notification request by mode: "send" (default) delivers
// one notification immediately, "process-queue" drains due queue entries.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if req.Mode == "process-queue" {
		h.processQueue(w, r, req)
		return
	}
	h.send(w, r, req)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, req NotificationRequest) {
	if req.UserID == "" {
		httputil.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := h.service.Send(r.Context(), SendInput{
		UserID:   req.UserID,
		Template: req.Template,
		Payload:  req.Payload,
		To:       req.To,
		DryRun:   req.DryRun,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, sendErrorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func (h *Handler) processQueue(w http.ResponseWriter, r *http.Request, req NotificationRequest) {
	summary, err := h.processor.ProcessQueue(r.Context(), batchSize(req.BatchSize), req.DryRun)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// batchSize coerces the loosely typed batchSize field. Absent or unparseable
// values yield zero, which the processor replaces with its default.
func batchSize(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
