package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/timetable-scheduler/internal/application"
	"github.com/example/timetable-scheduler/internal/scheduler"
)

type scheduleService interface {
	Create(ctx context.Context, input application.ScheduleInput) (application.Schedule, error)
	Get(ctx context.Context, id int64) (application.Schedule, error)
	List(ctx context.Context) ([]application.Schedule, error)
	Update(ctx context.Context, id int64, input application.ScheduleInput) (application.Schedule, error)
	Delete(ctx context.Context, id int64) error
	CheckConflicts(ctx context.Context, id int64) ([]scheduler.Conflict, error)
}

type optimizerService interface {
	Optimize(ctx context.Context, id int64) error
}

type ScheduleHandler struct {
	service   scheduleService
	optimizer optimizerService
	responder responder
}

func NewScheduleHandler(service scheduleService, optimizer optimizerService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, optimizer: optimizer, responder: newResponder(logger)}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	schedule, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	schedules, err := h.service.List(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := scheduleListResponse{Schedules: make([]scheduleDTO, 0, len(schedules))}
	for _, schedule := range schedules {
		payload.Schedules = append(payload.Schedules, toScheduleDTO(schedule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	schedule, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	schedule, err := h.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Optimize accepts the optimization request and returns once the run has been
// started; completion is reported through the event stream.
func (h *ScheduleHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.optimizer == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	if err := h.optimizer.Optimize(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.responder.logger, "schedules", "optimize", "schedule_id", id).
		InfoContext(r.Context(), "optimization accepted")
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, optimizeResponse{
		ScheduleID: id,
		Message:    "optimization started",
	})
}

func (h *ScheduleHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	conflicts, err := h.service.CheckConflicts(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := conflictCheckResponse{Conflicts: scheduler.Descriptions(conflicts)}
	if payload.Conflicts == nil {
		payload.Conflicts = []string{}
	}
	if len(payload.Conflicts) == 0 {
		payload.Message = "No conflicts"
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, payload)
}

func (h *ScheduleHandler) scheduleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw, ok := ScheduleIDFromContext(r.Context())
	if !ok || strings.TrimSpace(raw) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return 0, false
	}
	return id, true
}

type entryDTO struct {
	Subject   string `json:"subject"`
	Teacher   string `json:"teacher"`
	Group     string `json:"group"`
	Room      string `json:"room"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type scheduleRequest struct {
	Name    string     `json:"name"`
	Entries []entryDTO `json:"entries"`
}

type scheduleDTO struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastOptimizedAt *time.Time `json:"lastOptimizedAt,omitempty"`
	Entries         []entryDTO `json:"entries"`
}

type scheduleListResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type optimizeResponse struct {
	ScheduleID int64  `json:"scheduleId"`
	Message    string `json:"message"`
}

type conflictCheckResponse struct {
	Conflicts []string `json:"conflicts"`
	Message   string   `json:"message,omitempty"`
}

// toInput converts the wire entries to the application input. Unparseable
// clock values are carried as -1 so the validation layer reports the field
// instead of the transport rejecting the whole body.
func (r scheduleRequest) toInput() application.ScheduleInput {
	input := application.ScheduleInput{Name: r.Name}
	for _, entry := range r.Entries {
		input.Entries = append(input.Entries, application.EntryInput{
			Subject: entry.Subject,
			Teacher: entry.Teacher,
			Group:   entry.Group,
			Room:    entry.Room,
			Day:     entry.DayOfWeek,
			Start:   parseClockOrInvalid(entry.StartTime),
			End:     parseClockOrInvalid(entry.EndTime),
		})
	}
	return input
}

func parseClockOrInvalid(value string) int {
	minutes, err := scheduler.ParseClock(value)
	if err != nil {
		return -1
	}
	return minutes
}

func toScheduleDTO(schedule application.Schedule) scheduleDTO {
	dto := scheduleDTO{
		ID:              schedule.ID,
		Name:            schedule.Name,
		Status:          string(schedule.Status),
		CreatedAt:       schedule.CreatedAt,
		LastOptimizedAt: schedule.LastOptimizedAt,
		Entries:         make([]entryDTO, 0, len(schedule.Entries)),
	}
	for _, entry := range schedule.Entries {
		dto.Entries = append(dto.Entries, entryDTO{
			Subject:   entry.Subject,
			Teacher:   entry.Teacher,
			Group:     entry.Group,
			Room:      entry.Room,
			DayOfWeek: int(entry.Day),
			StartTime: scheduler.FormatClock(entry.Start),
			EndTime:   scheduler.FormatClock(entry.End),
		})
	}
	return dto
}
