package notifications

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/slotwave/slotwave/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrJobNotFound, Status: http.StatusNotFound, Message: "notification job not found"},
	{Error: ErrJobNotFailed, Status: http.StatusConflict, Message: "job is not in failed status"},
}

const defaultFailedLimit = 50

// Handler exposes the operator surface of the queue: stats, failed-job
// inspection, and the out-of-band re-drive of exhausted jobs.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification operator routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/failed", h.ListFailed)
		r.Post("/failed/{id}/retry", h.RetryFailed)
	})
}

// statsResponse is the queue stats payload.
type statsResponse struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// listFailedRequest holds query parameters for ListFailed.
type listFailedRequest struct {
	Limit int `validate:"gte=1,lte=500"`
}

// jobResponse is the job payload returned to operators.
type jobResponse struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Status         string `json:"status"`
	RetryCount     int    `json:"retry_count"`
	MaxRetries     int    `json:"max_retries"`
	FailureReason  string `json:"failure_reason,omitempty"`
	AppointmentID  string `json:"appointment_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// GetStats handles GET /notifications/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, statsResponse{
		Pending: stats.Pending,
		Sent:    stats.Sent,
		Failed:  stats.Failed,
	})
}

// ListFailed handles GET /notifications/failed.
func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	req := listFailedRequest{Limit: defaultFailedLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		req.Limit = parsed
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	jobs, err := h.service.ListFailed(r.Context(), req.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, toJobResponse(job))
	}

	httputil.Success(w, http.StatusOK, resp)
}

// RetryFailed handles POST /notifications/failed/{id}/retry.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := h.service.RetryFailed(r.Context(), jobID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"status": "pending"})
}

func toJobResponse(job *Job) jobResponse {
	return jobResponse{
		ID:             job.ID,
		Kind:           string(job.Kind),
		RecipientEmail: job.RecipientEmail,
		Subject:        job.Subject,
		Status:         string(job.Status),
		RetryCount:     job.RetryCount,
		MaxRetries:     job.MaxRetries,
		FailureReason:  job.FailureReason,
		AppointmentID:  job.AppointmentID,
		CreatedAt:      job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      job.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
