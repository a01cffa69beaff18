package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okamoto/esmart-sensor-client/internal/models"
	"github.com/okamoto/esmart-sensor-client/internal/session"
	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"go.uber.org/zap"
)

// ErrArchiveDisabled is returned by History when no archive is configured
var ErrArchiveDisabled = errors.New("reading archive is disabled")

// Fetcher performs one sensor query
type Fetcher interface {
	Fetch(ctx context.Context, q protocol.Query) (*session.Exchange, error)
}

// Archive stores and retrieves readings
type Archive interface {
	Insert(ctx context.Context, rec *models.ReadingRecord) (int64, error)
	Latest(ctx context.Context, queryKind string, limit int) ([]models.ReadingRecord, error)
}

// Result represents the outcome of one poll
type Result struct {
	Query     protocol.Query
	Exchange  *session.Exchange
	Error     error
	Archived  bool
	Completed time.Time
}

// Stats counts outcomes since the reader was created
type Stats struct {
	Succeeded int
	Failed    int
	Archived  int
}

// Reader fetches readings and archives them when an archive is configured
type Reader struct {
	fetcher Fetcher
	archive Archive
	stats   Stats
	logger  *zap.Logger
}

// NewReader creates a reader; archive may be nil
func NewReader(fetcher Fetcher, archive Archive, logger *zap.Logger) *Reader {
	return &Reader{
		fetcher: fetcher,
		archive: archive,
		logger:  logger,
	}
}

// Read fetches the latest reading for q
func (r *Reader) Read(ctx context.Context, q protocol.Query) (*session.Exchange, error) {
	res := r.process(ctx, q)
	return res.Exchange, res.Error
}

// process runs one query through fetch and archive
func (r *Reader) process(ctx context.Context, q protocol.Query) *Result {
	result := &Result{Query: q}

	ex, err := r.fetcher.Fetch(ctx, q)
	result.Completed = time.Now()
	if err != nil {
		r.stats.Failed++
		result.Error = fmt.Errorf("failed to read %s: %w", q, err)
		return result
	}

	r.stats.Succeeded++
	result.Exchange = ex

	if r.archive == nil {
		return result
	}

	port, _ := strconv.Atoi(ex.Sensor.Port)
	rec := &models.ReadingRecord{
		TraceID:    ex.TraceID,
		Query:      q.Slug(),
		ReadAt:     ex.Reading.Timestamp,
		Value:      ex.Reading.Value,
		Unit:       ex.Reading.Unit,
		SensorPort: port,
		FetchedAt:  result.Completed,
	}

	// a reading that could not be archived is still returned
	if _, err := r.archive.Insert(ctx, rec); err != nil {
		r.logger.Error("failed to archive reading",
			zap.String("trace_id", ex.TraceID),
			zap.Error(err))
		return result
	}

	r.stats.Archived++
	result.Archived = true
	return result
}

// History returns archived readings for q, newest first
func (r *Reader) History(ctx context.Context, q protocol.Query, limit int) ([]models.ReadingRecord, error) {
	if r.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return r.archive.Latest(ctx, q.Slug(), limit)
}

// Watch polls q immediately and then every interval until ctx is done.
// Polls never overlap; a slow query delays the next tick.
func (r *Reader) Watch(ctx context.Context, q protocol.Query, interval time.Duration, fn func(*Result)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid watch interval %s", interval)
	}

	r.logger.Info("watching sensor",
		zap.Stringer("query", q),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res := r.process(ctx, q)
		if res.Error != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		fn(res)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns outcome counters
func (r *Reader) Stats() Stats {
	return r.stats
}
