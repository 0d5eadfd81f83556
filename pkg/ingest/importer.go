package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// DefaultBatchSize is how many rows are inserted per statement when the
// caller does not choose one
const DefaultBatchSize = 1000

// Stats accumulates the outcome of one import run
type Stats struct {
	Read       int
	Parsed     int
	Inserted   int
	Duplicates int
	Skipped    int
}

// Importer streams CSV rows into the event store in fixed-size batches.
// Each batch commits independently, so a failure partway through leaves the
// earlier batches inserted.
type Importer struct {
	events    storage.EventStore
	batchSize int
	logger    *logrus.Logger
}

// NewImporter creates an importer. A non-positive batch size falls back to
// DefaultBatchSize.
func NewImporter(events storage.EventStore, batchSize int, logger *logrus.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{events: events, batchSize: batchSize, logger: logger}
}

// Run imports every row from the source. Invalid rows are logged and
// counted as skipped; the stats reflect everything processed before any
// returned error.
func (im *Importer) Run(ctx context.Context, source io.Reader) (Stats, error) {
	var stats Stats

	reader, err := NewReader(source)
	if err != nil {
		return stats, err
	}

	batch := make([]storage.Event, 0, im.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			stats.Read++
			stats.Skipped++
			im.logger.WithField("line", rowErr.Line).Warnf("skipping row: %v", rowErr.Err)
			continue
		}
		if err != nil {
			return stats, err
		}

		stats.Read++
		stats.Parsed++
		batch = append(batch, event)
		if len(batch) >= im.batchSize {
			if err := im.flush(ctx, &stats, batch); err != nil {
				return stats, err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := im.flush(ctx, &stats, batch); err != nil {
			return stats, err
		}
	}

	im.logger.WithFields(logrus.Fields{
		"read":       stats.Read,
		"parsed":     stats.Parsed,
		"inserted":   stats.Inserted,
		"duplicates": stats.Duplicates,
		"skipped":    stats.Skipped,
	}).Info("import completed")
	return stats, nil
}

func (im *Importer) flush(ctx context.Context, stats *Stats, batch []storage.Event) error {
	inserted, err := im.events.InsertBatch(ctx, batch)
	if err != nil {
		return err
	}
	stats.Inserted += len(inserted)
	stats.Duplicates += len(batch) - len(inserted)
	im.logger.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"inserted":   stats.Inserted,
		"duplicates": stats.Duplicates,
		"read":       stats.Read,
	}).Info("batch imported")
	return nil
}
