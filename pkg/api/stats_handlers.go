package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pulse/pkg/analytics"
	"github.com/platinummonkey/pulse/pkg/httputil"
	"github.com/platinummonkey/pulse/pkg/middleware"
	"github.com/platinummonkey/pulse/pkg/observability"
)

// StatsHandlers handles analytics queries
type StatsHandlers struct {
	service *analytics.Service
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewStatsHandlers creates a new stats handlers instance
func NewStatsHandlers(service *analytics.Service, metrics *observability.Metrics, logger *observability.Logger) *StatsHandlers {
	return &StatsHandlers{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes registers the stats routes. All of them require an access
// token, with the benchmark-token bypass enabled for load generators.
func (h *StatsHandlers) RegisterRoutes(router *mux.Router, authMW *middleware.AuthMiddleware, limit func(http.Handler) http.Handler) {
	router.Handle("/stats/dau", authMW.BenchmarkHandler(limit(http.HandlerFunc(h.dau)))).Methods("GET")
	router.Handle("/stats/top-events", authMW.BenchmarkHandler(limit(http.HandlerFunc(h.topEvents)))).Methods("GET")
	router.Handle("/stats/retention", authMW.BenchmarkHandler(limit(http.HandlerFunc(h.retention)))).Methods("GET")
}

const dateLayout = "2006-01-02"

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%q query parameter is required", name)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q must be a date in YYYY-MM-DD format", name)
	}
	return t, nil
}

// dau handles GET /stats/dau?from=YYYY-MM-DD&to=YYYY-MM-DD[&segment=...]
func (h *StatsHandlers) dau(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if from.After(to) {
		httputil.WriteBadRequest(w, "'from' date must be earlier than or equal to 'to' date")
		return
	}

	var segment *analytics.Segment
	if raw := r.URL.Query().Get("segment"); raw != "" {
		segment, err = analytics.ParseSegment(raw)
		if errors.Is(err, analytics.ErrInvalidSegment) {
			httputil.WriteBadRequest(w, "invalid segment format")
			return
		}
	}

	counts, err := h.service.DAU(r.Context(), from, to, segment)
	if err != nil {
		h.logger.WithError(err).Error("DAU query failed")
		httputil.WriteInternalError(w)
		return
	}

	// Keyed by date, matching the shape clients chart directly.
	result := make(map[string]int64, len(counts))
	for _, c := range counts {
		result[c.Date] = c.ActiveUsers
	}
	httputil.WriteSuccess(w, result)
}

// topEvents handles GET /stats/top-events?limit=N
func (h *StatsHandlers) topEvents(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			httputil.WriteBadRequest(w, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	top, err := h.service.TopEvents(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("top events query failed")
		httputil.WriteInternalError(w)
		return
	}
	if top == nil {
		top = []analytics.EventTypeCount{}
	}
	httputil.WriteSuccess(w, top)
}

// retention handles GET /stats/retention?start_date=YYYY-MM-DD&window=N
func (h *StatsHandlers) retention(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r, "start_date")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if start.After(time.Now()) {
		httputil.WriteBadRequest(w, "start date cannot be in the future")
		return
	}

	window := 4
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 52 {
			httputil.WriteBadRequest(w, "window must be an integer between 1 and 52")
			return
		}
		window = parsed
	}

	report, err := h.service.WeeklyRetention(r.Context(), start, window)
	if err != nil {
		h.logger.WithError(err).Error("retention query failed")
		httputil.WriteInternalError(w)
		return
	}

	if report.CohortSize == 0 {
		httputil.WriteSuccess(w, map[string]string{
			"details": fmt.Sprintf("No first visit users on %s", start.Format(dateLayout)),
		})
		return
	}
	httputil.WriteSuccess(w, report)
}
