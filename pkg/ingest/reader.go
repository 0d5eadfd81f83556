// Package ingest bulk-loads events from CSV sources, local or S3, in
// independently committed batches with conflict-skip deduplication.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// requiredColumns are the CSV columns an import file must carry. Extra
// columns are tolerated and ignored.
var requiredColumns = []string{"event_id", "occurred_at", "user_id", "event_type", "properties_json"}

// Reader streams validated events out of a CSV file. Rows that fail
// validation are skipped and counted, never fatal; a malformed file-level
// structure (missing header columns, unreadable CSV) is.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
	line    int
}

// NewReader validates the header and prepares row streaming.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	// Import files may carry extra columns beyond the required set.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv file is empty, header is absent")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			// Files exported on Windows often lead with a UTF-8 BOM.
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[name] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}

	return &Reader{csv: cr, columns: columns, line: 1}, nil
}

// RowError reports one skipped row
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Next returns the next valid event. Invalid rows come back as *RowError so
// the caller can count and keep going; io.EOF ends the stream.
func (r *Reader) Next() (storage.Event, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return storage.Event{}, io.EOF
	}
	r.line++
	if err != nil {
		return storage.Event{}, &RowError{Line: r.line, Err: err}
	}

	event, err := r.parseRecord(record)
	if err != nil {
		return storage.Event{}, &RowError{Line: r.line, Err: err}
	}
	return event, nil
}

// Line is the number of the most recently read line, header included
func (r *Reader) Line() int { return r.line }

func (r *Reader) field(record []string, name string) string {
	idx := r.columns[name]
	if idx >= len(record) {
		return ""
	}
	return record[idx]
}

func (r *Reader) parseRecord(record []string) (storage.Event, error) {
	rawID := strings.TrimSpace(r.field(record, "event_id"))
	if rawID == "" {
		return storage.Event{}, fmt.Errorf("empty event_id")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return storage.Event{}, fmt.Errorf("bad event_id %q: %w", rawID, err)
	}

	rawOccurred := strings.TrimSpace(r.field(record, "occurred_at"))
	occurredAt, err := time.Parse(time.RFC3339, rawOccurred)
	if err != nil {
		return storage.Event{}, fmt.Errorf("bad occurred_at %q: %w", rawOccurred, err)
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(r.field(record, "user_id")), 10, 64)
	if err != nil {
		return storage.Event{}, fmt.Errorf("bad user_id %q", r.field(record, "user_id"))
	}

	eventType := strings.TrimSpace(r.field(record, "event_type"))
	if eventType == "" {
		return storage.Event{}, fmt.Errorf("empty event_type")
	}

	properties, err := parseProperties(r.field(record, "properties_json"))
	if err != nil {
		return storage.Event{}, err
	}

	return storage.Event{
		EventID:    eventID,
		OccurredAt: occurredAt,
		UserID:     userID,
		EventType:  eventType,
		Properties: properties,
	}, nil
}

// parseProperties decodes the properties_json cell. An empty cell becomes an
// empty object; a valid JSON value that is not an object is wrapped as
// {"value": x} so nothing importable is dropped.
func parseProperties(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("bad properties_json %q: %w", raw, err)
	}
	if obj, ok := value.(map[string]interface{}); ok {
		return obj, nil
	}
	return map[string]interface{}{"value": value}, nil
}
