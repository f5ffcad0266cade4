package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/usecase"
)

// EventService is the part of the distributor the HTTP API depends on.
type EventService interface {
	Submit(ctx context.Context, raw domain.NewEvent) (domain.Event, error)
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
}

// EventsHandler serves the /api/logs collection.
type EventsHandler struct {
	svc          EventService
	logger       *slog.Logger
	validate     *validator.Validate
	maxEventSize int64
	defaultLimit int
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(svc EventService, logger *slog.Logger, maxEventSize int64, defaultLimit int) *EventsHandler {
	if defaultLimit <= 0 {
		defaultLimit = usecase.DefaultRecentLimit
	}
	return &EventsHandler{
		svc:          svc,
		logger:       logger.With("component", "events_handler"),
		validate:     validator.New(),
		maxEventSize: maxEventSize,
		defaultLimit: defaultLimit,
	}
}

// List handles GET /api/logs?limit=N.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.svc.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recent events", "error", err)
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "event store unavailable")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	respondWithJSON(w, h.logger, http.StatusOK, events)
}

// Create handles POST /api/logs.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		respondWithError(w, h.logger, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	raw, err := h.decode(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondWithError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	event, err := h.svc.Submit(r.Context(), raw)
	if err != nil {
		if errors.Is(err, usecase.ErrSubmissionFailed) {
			respondWithError(w, h.logger, http.StatusServiceUnavailable, "event could not be stored")
			return
		}
		h.logger.Error("unexpected submission error", "error", err)
		respondWithError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	respondWithJSON(w, h.logger, http.StatusCreated, event)
}

func (h *EventsHandler) decode(body io.Reader) (domain.NewEvent, error) {
	var raw domain.NewEvent
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return raw, err
		}
		return raw, fmt.Errorf("malformed JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return raw, err
		}
		return raw, errors.New("malformed JSON body: trailing data after object")
	}

	if err := h.validate.Struct(raw); err != nil {
		return raw, validationError(err)
	}
	if raw.Details == nil {
		raw.Details = map[string]any{}
	}
	return raw, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid event: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", jsonFieldName(fe.Field())))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", jsonFieldName(fe.Field()), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", jsonFieldName(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid event: %s", strings.Join(msgs, "; "))
}

func jsonFieldName(field string) string {
	switch field {
	case "SourceIP":
		return "source_ip"
	case "ActionTaken":
		return "action_taken"
	default:
		return strings.ToLower(field)
	}
}
