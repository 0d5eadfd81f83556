package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/pulse/pkg/httputil"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
)

// EventHandlers handles event ingestion requests
type EventHandlers struct {
	events  storage.EventStore
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewEventHandlers creates a new event handlers instance
func NewEventHandlers(events storage.EventStore, metrics *observability.Metrics, logger *observability.Logger) *EventHandlers {
	return &EventHandlers{
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers event ingestion routes
func (h *EventHandlers) RegisterRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	router.Handle("/events/", limit(http.HandlerFunc(h.addEvents))).Methods("POST")
}

// addEvents handles POST /events/. The whole batch is inserted in one
// statement; event ids already present are reported as duplicates, never as
// errors, so retrying a partially delivered batch is safe.
func (h *EventHandlers) addEvents(w http.ResponseWriter, r *http.Request) {
	var reqs []eventRequest
	if !httputil.ParseJSONOrError(w, r, &reqs) {
		return
	}

	if len(reqs) == 0 {
		httputil.WriteCreated(w, eventsResponse{
			Inserted:   []uuid.UUID{},
			Duplicates: []uuid.UUID{},
		})
		return
	}

	events := make([]storage.Event, 0, len(reqs))
	for i := range reqs {
		if err := reqs[i].validate(); err != nil {
			h.metrics.InvalidEventsTotal.WithLabelValues("validation").Inc()
			httputil.WriteBadRequest(w, fmt.Sprintf("event %d: %s", i, err))
			return
		}
		events = append(events, reqs[i].toEvent())
	}

	start := time.Now()
	insertedIDs, err := h.events.InsertBatch(r.Context(), events)
	if err != nil {
		h.logger.WithError(err).Error("event batch insert failed")
		httputil.WriteInternalError(w)
		return
	}
	h.metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())

	inserted := make(map[uuid.UUID]bool, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = true
	}

	resp := eventsResponse{
		Inserted:   insertedIDs,
		Duplicates: []uuid.UUID{},
	}
	seen := make(map[uuid.UUID]bool, len(events))
	for _, e := range events {
		if inserted[e.EventID] || seen[e.EventID] {
			continue
		}
		seen[e.EventID] = true
		resp.Duplicates = append(resp.Duplicates, e.EventID)
	}
	if resp.Inserted == nil {
		resp.Inserted = []uuid.UUID{}
	}

	h.metrics.EventsIngestedTotal.WithLabelValues("inserted").Add(float64(len(resp.Inserted)))
	h.metrics.EventsIngestedTotal.WithLabelValues("duplicate").Add(float64(len(resp.Duplicates)))
	h.metrics.IngestBatchesTotal.WithLabelValues("api", "success").Inc()
	h.logger.WithFields(map[string]interface{}{
		"inserted":   len(resp.Inserted),
		"duplicates": len(resp.Duplicates),
	}).Info("event batch ingested")

	httputil.WriteCreated(w, resp)
}
