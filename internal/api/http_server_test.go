package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"
	"bookingsvc/internal/repository"
	"bookingsvc/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingJSON struct {
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	TTL        *int64 `json:"ttl"`
	Status     string `json:"status"`
}

func newTestServer(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	svc := service.NewBookingService(repository.NewMemoryStore(), config.BookingConfig{}, &logger)
	server := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createBooking(t *testing.T, ts *httptest.Server, body string) bookingJSON {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/bookings", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var b bookingJSON
	decode(t, resp, &b)
	return b
}

const createBody = `{"user_id":"u1","resource_id":"room-1","start_time":"2030-01-01T12:00:00Z","end_time":"2030-01-01T13:00:00Z","reminder_lead_seconds":1200}`

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	resp := do(t, http.MethodGet, ts.URL+"/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestCreateAndGet(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	created := createBooking(t, ts, createBody)
	assert.NotEmpty(t, created.BookingID)
	assert.Equal(t, "active", created.Status)
	require.NotNil(t, created.TTL)
	assert.Equal(t, start.Unix()-1200, *created.TTL)

	resp := do(t, http.MethodGet, ts.URL+"/bookings/"+created.BookingID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got bookingJSON
	decode(t, resp, &got)
	assert.Equal(t, created, got)
	assert.Equal(t, "2030-01-01T12:00:00Z", got.StartTime)
}

func TestCreateNaiveTimestamps(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	created := createBooking(t, ts, `{"user_id":"u1","resource_id":"r","start_time":"2030-01-01T12:00:00","end_time":"2030-01-01T13:00:00"}`)

	assert.Equal(t, "2030-01-01T12:00:00Z", created.StartTime)
	assert.Equal(t, "2030-01-01T13:00:00Z", created.EndTime)
	require.NotNil(t, created.TTL)
	assert.Equal(t, int64(1893499200-900), *created.TTL)
}

func TestCreateNullLead(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	created := createBooking(t, ts, `{"user_id":"u1","resource_id":"r","start_time":"2030-01-01T12:00:00Z","end_time":"2030-01-01T13:00:00Z","reminder_lead_seconds":null}`)
	assert.Nil(t, created.TTL)
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"MissingUser", `{"resource_id":"r","start_time":"2030-01-01T12:00:00Z","end_time":"2030-01-01T13:00:00Z"}`, "user_id"},
		{"EmptyResource", `{"user_id":"u","resource_id":"","start_time":"2030-01-01T12:00:00Z","end_time":"2030-01-01T13:00:00Z"}`, "resource_id"},
		{"BadTime", `{"user_id":"u","resource_id":"r","start_time":"tomorrow","end_time":"2030-01-01T13:00:00Z"}`, "start_time"},
		{"LeadTooSmall", `{"user_id":"u","resource_id":"r","start_time":"2030-01-01T12:00:00Z","end_time":"2030-01-01T13:00:00Z","reminder_lead_seconds":30}`, "reminder_lead_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/bookings", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var body struct {
				Detail []validationDetail `json:"detail"`
			}
			decode(t, resp, &body)
			require.NotEmpty(t, body.Detail)
			assert.Equal(t, []string{"body", tt.field}, body.Detail[0].Loc)
			assert.Equal(t, "value_error", body.Detail[0].Type)
		})
	}

	t.Run("NotAnObject", func(t *testing.T) {
		resp := do(t, http.MethodPost, ts.URL+"/bookings", `[1,2]`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		var body struct {
			Detail []validationDetail `json:"detail"`
		}
		decode(t, resp, &body)
		assert.Equal(t, []string{"body"}, body.Detail[0].Loc)
	})
}

func TestGetNotFound(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	resp := do(t, http.MethodGet, ts.URL+"/bookings/missing", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Booking not found", body["detail"])
}

func TestListForUser(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	a := createBooking(t, ts, createBody)
	b := createBooking(t, ts, createBody)
	createBooking(t, ts, strings.Replace(createBody, `"u1"`, `"u2"`, 1))

	resp := do(t, http.MethodGet, ts.URL+"/users/u1/bookings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []bookingJSON
	decode(t, resp, &list)

	ids := make([]string, 0, len(list))
	for _, item := range list {
		ids = append(ids, item.BookingID)
	}
	assert.ElementsMatch(t, []string{a.BookingID, b.BookingID}, ids)

	resp = do(t, http.MethodGet, ts.URL+"/users/nobody/bookings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestUpdate(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	created := createBooking(t, ts, createBody)
	url := ts.URL + "/bookings/" + created.BookingID

	t.Run("StartOnlyKeepsLead", func(t *testing.T) {
		resp := do(t, http.MethodPut, url, `{"start_time":"2030-01-02T12:00:00Z"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got bookingJSON
		decode(t, resp, &got)
		require.NotNil(t, got.TTL)
		assert.Equal(t, time.Date(2030, 1, 2, 12, 0, 0, 0, time.UTC).Unix()-1200, *got.TTL)
	})

	t.Run("NullLeadRemovesTTL", func(t *testing.T) {
		resp := do(t, http.MethodPut, url, `{"reminder_lead_seconds":null}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(t, http.MethodGet, url, "")
		var got bookingJSON
		decode(t, resp, &got)
		assert.Nil(t, got.TTL)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		resp := do(t, http.MethodPut, url, `{}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got bookingJSON
		decode(t, resp, &got)
		assert.Equal(t, created.BookingID, got.BookingID)
	})

	t.Run("NotFound", func(t *testing.T) {
		resp := do(t, http.MethodPut, ts.URL+"/bookings/missing", `{"resource_id":"room-9"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("LeadTooSmall", func(t *testing.T) {
		resp := do(t, http.MethodPut, url, `{"reminder_lead_seconds":1}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestCancel(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	created := createBooking(t, ts, createBody)

	for i := 0; i < 2; i++ {
		resp := do(t, http.MethodPost, ts.URL+"/bookings/"+created.BookingID+"/cancel", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got bookingJSON
		decode(t, resp, &got)
		assert.Equal(t, "cancelled", got.Status)
		assert.Equal(t, created.TTL, got.TTL)
	}

	resp := do(t, http.MethodPost, ts.URL+"/bookings/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	created := createBooking(t, ts, createBody)

	resp := do(t, http.MethodDelete, ts.URL+"/bookings/"+created.BookingID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, raw)

	resp = do(t, http.MethodGet, ts.URL+"/bookings/"+created.BookingID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/bookings/missing", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/health", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/health", "").StatusCode)

	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "rate limit exceeded", body["detail"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/nope", "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodPatch, ts.URL+"/bookings/x", "").StatusCode)
}

type failingService struct {
	domain.BookingService
}

func (failingService) Get(context.Context, string) (*models.Booking, error) {
	return nil, errors.New("dynamodb get item: RequestTimeout")
}

func TestDownstreamFailure(t *testing.T) {
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(config.APIConfig{}, failingService{}, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp := do(t, http.MethodGet, ts.URL+"/bookings/any", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Internal Server Error", body["detail"])
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientKey(r))
}
