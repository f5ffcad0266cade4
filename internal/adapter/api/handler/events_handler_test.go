package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/usecase"
)

// MockEventService is a mock implementation of EventService.
type MockEventService struct {
	SubmitFunc func(ctx context.Context, raw domain.NewEvent) (domain.Event, error)
	RecentFunc func(ctx context.Context, limit int) ([]domain.Event, error)
	lastLimit  int
	submitted  []domain.NewEvent
}

func (m *MockEventService) Submit(ctx context.Context, raw domain.NewEvent) (domain.Event, error) {
	m.submitted = append(m.submitted, raw)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, raw)
	}
	return domain.Event{
		ID:          "evt-1",
		Type:        raw.Type,
		SourceIP:    raw.SourceIP,
		ActionTaken: raw.ActionTaken,
		Details:     raw.Details,
		Timestamp:   time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}, nil
}

func (m *MockEventService) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	m.lastLimit = limit
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return nil, nil
}

func TestEventsHandler_Create(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valid := `{"type":"Port Scan Detected","source_ip":"1.2.3.4","action_taken":"Blocked","details":{"severity":"High"}}`

	tests := []struct {
		name           string
		contentType    string
		body           string
		maxSize        int64
		submitErr      error
		expectedStatus int
		expectedError  string
		expectSubmit   bool
	}{
		{
			name:           "Valid event",
			contentType:    "application/json",
			body:           valid,
			expectedStatus: http.StatusCreated,
			expectSubmit:   true,
		},
		{
			name:           "Content-Type with charset",
			contentType:    "application/json; charset=utf-8",
			body:           valid,
			expectedStatus: http.StatusCreated,
			expectSubmit:   true,
		},
		{
			name:           "Details omitted",
			contentType:    "application/json",
			body:           `{"type":"Port Scan Detected","source_ip":"1.2.3.4","action_taken":"Blocked"}`,
			expectedStatus: http.StatusCreated,
			expectSubmit:   true,
		},
		{
			name:           "Unsupported Content-Type",
			contentType:    "text/plain",
			body:           valid,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedError:  "Content-Type must be application/json",
		},
		{
			name:           "Bad JSON",
			contentType:    "application/json",
			body:           `{"type": "x"`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "malformed JSON body",
		},
		{
			name:           "Unknown field",
			contentType:    "application/json",
			body:           `{"type":"a","source_ip":"b","action_taken":"c","severity":"High"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "unknown field",
		},
		{
			name:           "Trailing data",
			contentType:    "application/json",
			body:           valid + `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "trailing data",
		},
		{
			name:           "Missing required fields",
			contentType:    "application/json",
			body:           `{"type":"Port Scan Detected","source_ip":""}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "source_ip is required; action_taken is required",
		},
		{
			name:           "Payload Too Large",
			contentType:    "application/json",
			body:           valid,
			maxSize:        20,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedError:  "payload too large",
		},
		{
			name:           "Store unavailable",
			contentType:    "application/json",
			body:           valid,
			submitErr:      fmt.Errorf("%w: %w", usecase.ErrSubmissionFailed, errors.New("connection refused")),
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "event could not be stored",
			expectSubmit:   true,
		},
		{
			name:           "Unexpected error",
			contentType:    "application/json",
			body:           valid,
			submitErr:      errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal server error",
			expectSubmit:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockEventService{}
			if tt.submitErr != nil {
				svc.SubmitFunc = func(ctx context.Context, raw domain.NewEvent) (domain.Event, error) {
					return domain.Event{}, tt.submitErr
				}
			}
			maxSize := int64(1024)
			if tt.maxSize > 0 {
				maxSize = tt.maxSize
			}
			h := NewEventsHandler(svc, logger, maxSize, 100)

			req := httptest.NewRequest(http.MethodPost, "/api/logs", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			h.Create(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v (body %q)", status, tt.expectedStatus, rr.Body.String())
			}
			if got := len(svc.submitted) > 0; got != tt.expectSubmit {
				t.Errorf("expected submit called = %v, got %v", tt.expectSubmit, got)
			}

			if tt.expectedError != "" {
				var resp errorResponse
				if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode error body: %v", err)
				}
				if !strings.Contains(resp.Error, tt.expectedError) {
					t.Errorf("expected error containing %q, got %q", tt.expectedError, resp.Error)
				}
				return
			}

			var event map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &event); err != nil {
				t.Fatalf("failed to decode event body: %v", err)
			}
			for _, field := range []string{"id", "type", "source_ip", "action_taken", "details", "timestamp"} {
				if _, ok := event[field]; !ok {
					t.Errorf("response is missing field %q", field)
				}
			}
			if svc.submitted[0].Details == nil {
				t.Error("details should default to an empty object")
			}
		})
	}
}

func TestEventsHandler_List(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		query          string
		recentErr      error
		expectedStatus int
		expectedLimit  int
	}{
		{name: "Default limit", query: "", expectedStatus: http.StatusOK, expectedLimit: 100},
		{name: "Explicit limit", query: "?limit=5", expectedStatus: http.StatusOK, expectedLimit: 5},
		{name: "Large limit passes through for clamping", query: "?limit=5000", expectedStatus: http.StatusOK, expectedLimit: 5000},
		{name: "Zero limit", query: "?limit=0", expectedStatus: http.StatusBadRequest},
		{name: "Negative limit", query: "?limit=-3", expectedStatus: http.StatusBadRequest},
		{name: "Non-numeric limit", query: "?limit=ten", expectedStatus: http.StatusBadRequest},
		{name: "Store error", query: "", recentErr: errors.New("down"), expectedStatus: http.StatusServiceUnavailable, expectedLimit: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockEventService{}
			if tt.recentErr != nil {
				svc.RecentFunc = func(ctx context.Context, limit int) ([]domain.Event, error) {
					return nil, tt.recentErr
				}
			}
			h := NewEventsHandler(svc, logger, 1024, 100)

			req := httptest.NewRequest(http.MethodGet, "/api/logs"+tt.query, nil)
			rr := httptest.NewRecorder()
			h.List(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if svc.lastLimit != tt.expectedLimit {
				t.Errorf("expected limit %d, got %d", tt.expectedLimit, svc.lastLimit)
			}
			if rr.Code == http.StatusOK && strings.TrimSpace(rr.Body.String()) != "[]" {
				t.Errorf("expected an empty JSON array, got %q", rr.Body.String())
			}
		})
	}

	t.Run("Newest first order is preserved", func(t *testing.T) {
		svc := &MockEventService{RecentFunc: func(ctx context.Context, limit int) ([]domain.Event, error) {
			return []domain.Event{{ID: "b"}, {ID: "a"}}, nil
		}}
		h := NewEventsHandler(svc, logger, 1024, 100)
		rr := httptest.NewRecorder()
		h.List(rr, httptest.NewRequest(http.MethodGet, "/api/logs", nil))

		var events []domain.Event
		if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if len(events) != 2 || events[0].ID != "b" || events[1].ID != "a" {
			t.Errorf("unexpected order: %+v", events)
		}
	})
}
