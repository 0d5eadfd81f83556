package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

// Service provides analytics business logic over the events table
type Service struct {
	db *sql.DB
}

// NewService creates a new analytics service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const dateLayout = "2006-01-02"

// DailyCount is the number of distinct active users on one day
type DailyCount struct {
	Date        string `json:"date"`
	ActiveUsers int64  `json:"active_users"`
}

// DAU returns distinct active users per day over the inclusive date range,
// optionally narrowed by a segment filter. Days with no events are absent
// from the result.
func (s *Service) DAU(ctx context.Context, from, to time.Time, segment *Segment) ([]DailyCount, error) {
	query := `
		SELECT occurred_at::date AS day, COUNT(DISTINCT user_id) AS dau
		FROM events
		WHERE occurred_at::date BETWEEN $1 AND $2
	`
	args := []interface{}{from.Format(dateLayout), to.Format(dateLayout)}

	if segment != nil {
		clause, segArgs := segment.whereClause(len(args) + 1)
		query += " AND " + clause
		args = append(args, segArgs...)
	}

	query += `
		GROUP BY occurred_at::date
		ORDER BY occurred_at::date
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []DailyCount
	for rows.Next() {
		var day time.Time
		var c DailyCount
		if err := rows.Scan(&day, &c.ActiveUsers); err != nil {
			return nil, err
		}
		c.Date = day.Format(dateLayout)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// EventTypeCount is the occurrence count of one event type
type EventTypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// TopEvents returns the most frequent event types across the whole table,
// most frequent first. The limit is clamped to [1, 100] with a default of 10.
func (s *Service) TopEvents(ctx context.Context, limit int) ([]EventTypeCount, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT event_type, COUNT(event_id) AS count
		FROM events
		GROUP BY event_type
		ORDER BY COUNT(event_id) DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var top []EventTypeCount
	for rows.Next() {
		var ec EventTypeCount
		if err := rows.Scan(&ec.EventType, &ec.Count); err != nil {
			return nil, err
		}
		top = append(top, ec)
	}
	return top, rows.Err()
}

// RetentionWeek is one week of cohort activity
type RetentionWeek struct {
	WeekNum     int     `json:"week_num"`
	Period      string  `json:"period"`
	ActiveUsers int64   `json:"week_active_users"`
	Percent     float64 `json:"percent"`
}

// RetentionReport is a weekly retention breakdown for one cohort
type RetentionReport struct {
	StartDate  string          `json:"start_date"`
	Window     int             `json:"window"`
	CohortSize int64           `json:"cohort_size"`
	Weeks      []RetentionWeek `json:"weeks"`
}

// cohortQuery selects users whose first event fell on the cohort date.
const cohortQuery = `
	SELECT user_id
	FROM events
	GROUP BY user_id
	HAVING MIN(occurred_at)::date = $1
`

// WeeklyRetention builds a cohort of users first seen on start and reports
// how many of them were active in each of the following weeks. A cohort of
// zero users yields an empty report with no weeks.
func (s *Service) WeeklyRetention(ctx context.Context, start time.Time, window int) (*RetentionReport, error) {
	report := &RetentionReport{
		StartDate: start.Format(dateLayout),
		Window:    window,
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS cohort", cohortQuery)
	if err := s.db.QueryRowContext(ctx, countQuery, report.StartDate).Scan(&report.CohortSize); err != nil {
		return nil, err
	}
	if report.CohortSize == 0 {
		return report, nil
	}

	weekQuery := fmt.Sprintf(`
		SELECT COUNT(DISTINCT user_id)
		FROM events
		WHERE user_id IN (%s)
		  AND occurred_at::date >= $2
		  AND occurred_at::date < $3
	`, cohortQuery)

	for week := 0; week < window; week++ {
		weekStart := start.AddDate(0, 0, 7*week+1)
		weekEnd := weekStart.AddDate(0, 0, 7)

		var active int64
		err := s.db.QueryRowContext(ctx, weekQuery,
			report.StartDate,
			weekStart.Format(dateLayout),
			weekEnd.Format(dateLayout),
		).Scan(&active)
		if err != nil {
			return nil, err
		}

		percent := float64(active) / float64(report.CohortSize) * 100
		report.Weeks = append(report.Weeks, RetentionWeek{
			WeekNum:     week,
			Period:      fmt.Sprintf("%s - %s", weekStart.Format(dateLayout), weekEnd.AddDate(0, 0, -1).Format(dateLayout)),
			ActiveUsers: active,
			Percent:     math.Round(percent*100) / 100,
		})
	}

	return report, nil
}
