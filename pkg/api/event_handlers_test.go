package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
)

// stubEventStore records the batch it was given and returns canned ids.
type stubEventStore struct {
	gotBatch  []storage.Event
	inserted  []uuid.UUID
	insertErr error
}

func (s *stubEventStore) InsertBatch(ctx context.Context, events []storage.Event) ([]uuid.UUID, error) {
	s.gotBatch = events
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return s.inserted, nil
}

func (s *stubEventStore) CountEvents(ctx context.Context) (int64, error) {
	return int64(len(s.gotBatch)), nil
}

func newEventRouter(t *testing.T, store *stubEventStore) *mux.Router {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handlers := NewEventHandlers(store, metrics, logger)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router, func(next http.Handler) http.Handler { return next })
	return router
}

func postEvents(t *testing.T, router *mux.Router, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/events/", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validEvent(id uuid.UUID) eventRequest {
	return eventRequest{
		EventID:    id,
		OccurredAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		UserID:     7,
		EventType:  "page_view",
		Properties: map[string]interface{}{"path": "/home"},
	}
}

func TestAddEventsSplitsInsertedAndDuplicates(t *testing.T) {
	idNew := uuid.New()
	idDup := uuid.New()
	store := &stubEventStore{inserted: []uuid.UUID{idNew}}
	router := newEventRouter(t, store)

	rec := postEvents(t, router, []eventRequest{validEvent(idNew), validEvent(idDup)})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []uuid.UUID{idNew}, resp.Inserted)
	assert.Equal(t, []uuid.UUID{idDup}, resp.Duplicates)
	assert.Len(t, store.gotBatch, 2)
}

func TestAddEventsRepeatedIDWithinBatch(t *testing.T) {
	id := uuid.New()
	store := &stubEventStore{inserted: []uuid.UUID{id}}
	router := newEventRouter(t, store)

	// The same id appears twice; since one copy was inserted, the other is
	// not reported as a duplicate.
	rec := postEvents(t, router, []eventRequest{validEvent(id), validEvent(id)})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []uuid.UUID{id}, resp.Inserted)
	assert.Empty(t, resp.Duplicates)
}

func TestAddEventsEmptyBatch(t *testing.T) {
	store := &stubEventStore{}
	router := newEventRouter(t, store)

	rec := postEvents(t, router, []eventRequest{})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"inserted":[],"duplicates":[]}`, rec.Body.String())
	assert.Nil(t, store.gotBatch)
}

func TestAddEventsAllDuplicates(t *testing.T) {
	id := uuid.New()
	store := &stubEventStore{inserted: nil}
	router := newEventRouter(t, store)

	rec := postEvents(t, router, []eventRequest{validEvent(id)})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Inserted)
	assert.Equal(t, []uuid.UUID{id}, resp.Duplicates)
}

func TestAddEventsValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*eventRequest)
	}{
		{"missing event id", func(e *eventRequest) { e.EventID = uuid.Nil }},
		{"missing timestamp", func(e *eventRequest) { e.OccurredAt = time.Time{} }},
		{"missing user id", func(e *eventRequest) { e.UserID = 0 }},
		{"missing event type", func(e *eventRequest) { e.EventType = "" }},
		{"event type too long", func(e *eventRequest) {
			e.EventType = strings.Repeat("x", eventTypeMaxLen+1)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubEventStore{}
			router := newEventRouter(t, store)

			bad := validEvent(uuid.New())
			tc.mutate(&bad)
			rec := postEvents(t, router, []eventRequest{validEvent(uuid.New()), bad})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorBody(t, rec), "event 1:")
			// A rejected batch never reaches storage.
			assert.Nil(t, store.gotBatch)
		})
	}
}

func TestAddEventsMalformedJSON(t *testing.T) {
	store := &stubEventStore{}
	router := newEventRouter(t, store)

	req := httptest.NewRequest(http.MethodPost, "/events/", bytes.NewReader([]byte(`{"not":"a list"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddEventsStoreFailure(t *testing.T) {
	store := &stubEventStore{insertErr: errors.New("connection reset")}
	router := newEventRouter(t, store)

	rec := postEvents(t, router, []eventRequest{validEvent(uuid.New())})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorBody(t, rec))
}

func TestAddEventsNilPropertiesBecomeEmptyMap(t *testing.T) {
	id := uuid.New()
	store := &stubEventStore{inserted: []uuid.UUID{id}}
	router := newEventRouter(t, store)

	ev := validEvent(id)
	ev.Properties = nil
	rec := postEvents(t, router, []eventRequest{ev})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.gotBatch, 1)
	assert.NotNil(t, store.gotBatch[0].Properties)
	assert.Empty(t, store.gotBatch[0].Properties)
}
