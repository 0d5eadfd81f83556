package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pulse/pkg/analytics"
	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/middleware"
	"github.com/platinummonkey/pulse/pkg/observability"
)

const benchToken = "bench-token"

// newStatsRouter wires the stats routes behind the real auth middleware so
// the benchmark-token bypass is exercised, with an sqlmock-backed service.
func newStatsRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cfg := auth.DefaultConfig()
	cfg.AccessSecret = []byte("test-access-secret")
	cfg.RefreshSecret = []byte("test-refresh-secret")
	authMW := middleware.NewAuthMiddleware(auth.NewCodec(cfg), newFakeUserStore(), benchToken, logger)

	handlers := NewStatsHandlers(analytics.NewService(db), metrics, logger)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router, authMW, func(next http.Handler) http.Handler { return next })
	return router, mock
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return d
}

func getStats(t *testing.T, router *mux.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+benchToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDAUEndpoint(t *testing.T) {
	router, mock := newStatsRouter(t)

	rows := sqlmock.NewRows([]string{"day", "dau"}).
		AddRow(mustDate(t, "2026-08-01"), 12).
		AddRow(mustDate(t, "2026-08-02"), 9)
	mock.ExpectQuery(`SELECT occurred_at::date AS day, COUNT\(DISTINCT user_id\)`).
		WithArgs("2026-08-01", "2026-08-03").
		WillReturnRows(rows)

	rec := getStats(t, router, "/stats/dau?from=2026-08-01&to=2026-08-03")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, map[string]int64{"2026-08-01": 12, "2026-08-02": 9}, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDAUEndpointBadRequests(t *testing.T) {
	router, _ := newStatsRouter(t)

	cases := []struct {
		name string
		path string
	}{
		{"missing from", "/stats/dau?to=2026-08-03"},
		{"missing to", "/stats/dau?from=2026-08-01"},
		{"bad date", "/stats/dau?from=august&to=2026-08-03"},
		{"from after to", "/stats/dau?from=2026-08-05&to=2026-08-03"},
		{"bad segment", "/stats/dau?from=2026-08-01&to=2026-08-03&segment=nonsense"},
		{"forbidden segment column", "/stats/dau?from=2026-08-01&to=2026-08-03&segment=hashed_password:x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := getStats(t, router, tc.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestDAUEndpointWithSegment(t *testing.T) {
	router, mock := newStatsRouter(t)

	rows := sqlmock.NewRows([]string{"day", "dau"}).
		AddRow(mustDate(t, "2026-08-01"), 4)
	mock.ExpectQuery(`AND properties->>\$3 = \$4`).
		WithArgs("2026-08-01", "2026-08-03", "country", "DE").
		WillReturnRows(rows)

	rec := getStats(t, router, "/stats/dau?from=2026-08-01&to=2026-08-03&segment=properties.country%3DDE")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRequireToken(t *testing.T) {
	router, _ := newStatsRouter(t)

	for _, path := range []string{
		"/stats/dau?from=2026-08-01&to=2026-08-03",
		"/stats/top-events",
		"/stats/retention?start_date=2026-08-01",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestTopEventsEndpoint(t *testing.T) {
	router, mock := newStatsRouter(t)

	rows := sqlmock.NewRows([]string{"event_type", "count"}).
		AddRow("page_view", 120).
		AddRow("click", 45)
	mock.ExpectQuery(`SELECT event_type, COUNT\(event_id\)`).
		WithArgs(5).
		WillReturnRows(rows)

	rec := getStats(t, router, "/stats/top-events?limit=5")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var top []analytics.EventTypeCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 2)
	assert.Equal(t, "page_view", top[0].EventType)
	assert.Equal(t, int64(120), top[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopEventsEndpointDefaultsAndEmpty(t *testing.T) {
	router, mock := newStatsRouter(t)

	mock.ExpectQuery(`SELECT event_type, COUNT\(event_id\)`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}))

	rec := getStats(t, router, "/stats/top-events")

	require.Equal(t, http.StatusOK, rec.Code)
	// An empty table yields an empty list, not null.
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopEventsEndpointRejectsBadLimit(t *testing.T) {
	router, _ := newStatsRouter(t)

	for _, path := range []string{
		"/stats/top-events?limit=0",
		"/stats/top-events?limit=101",
		"/stats/top-events?limit=ten",
	} {
		rec := getStats(t, router, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestRetentionEndpoint(t *testing.T) {
	router, mock := newStatsRouter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \(`).
		WithArgs("2026-08-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\)`).
		WithArgs("2026-08-01", "2026-08-02", "2026-08-09").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\)`).
		WithArgs("2026-08-01", "2026-08-09", "2026-08-16").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	rec := getStats(t, router, "/stats/retention?start_date=2026-08-01&window=2")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report analytics.RetentionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "2026-08-01", report.StartDate)
	assert.Equal(t, int64(8), report.CohortSize)
	require.Len(t, report.Weeks, 2)
	assert.Equal(t, 75.0, report.Weeks[0].Percent)
	assert.Equal(t, "2026-08-02 - 2026-08-08", report.Weeks[0].Period)
	assert.Equal(t, 37.5, report.Weeks[1].Percent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionEndpointEmptyCohort(t *testing.T) {
	router, mock := newStatsRouter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \(`).
		WithArgs("2026-08-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	rec := getStats(t, router, "/stats/retention?start_date=2026-08-01")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"details": "No first visit users on 2026-08-01"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionEndpointBadRequests(t *testing.T) {
	router, _ := newStatsRouter(t)

	cases := []struct {
		name string
		path string
	}{
		{"missing start", "/stats/retention"},
		{"future start", "/stats/retention?start_date=2999-01-01"},
		{"window too small", "/stats/retention?start_date=2026-08-01&window=0"},
		{"window too large", "/stats/retention?start_date=2026-08-01&window=53"},
		{"window not a number", "/stats/retention?start_date=2026-08-01&window=four"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := getStats(t, router, tc.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}
