package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/godror/godror"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/okamoto/esmart-sensor-client/internal/config"
	"github.com/okamoto/esmart-sensor-client/internal/models"
	"go.uber.org/zap"
)

// Supported drivers
const (
	DriverSQLite = "sqlite3"
	DriverOracle = "godror"
)

// Store persists successful sensor readings
type Store struct {
	db     *sqlx.DB
	config *config.ArchiveConfig
	logger *zap.Logger
}

// Open connects to the archive database and verifies it is reachable
func Open(cfg *config.ArchiveConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	logger.Info("archive connection established",
		zap.String("driver", cfg.Driver),
		zap.String("table", cfg.TableName))

	return &Store{
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

// Migrate creates the readings table. Oracle schemas are provisioned by the DBA.
func (s *Store) Migrate(ctx context.Context) error {
	if s.config.Driver != DriverSQLite {
		s.logger.Debug("skipping archive migration", zap.String("driver", s.config.Driver))
		return nil
	}

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id      TEXT     NOT NULL,
			query_kind    TEXT     NOT NULL,
			read_at       INTEGER  NOT NULL,
			reading_value INTEGER  NOT NULL,
			unit          TEXT     NOT NULL,
			sensor_port   INTEGER  NOT NULL,
			fetched_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_query_read_at ON %[1]s(query_kind, read_at);
	`, s.config.TableName)

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}

	return nil
}

// Insert stores a reading and returns its id
func (s *Store) Insert(ctx context.Context, rec *models.ReadingRecord) (int64, error) {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}

	args := []interface{}{
		rec.TraceID,
		rec.Query,
		rec.ReadAt,
		rec.Value,
		rec.Unit,
		rec.SensorPort,
		rec.FetchedAt.UTC(),
	}

	var id int64
	switch s.config.Driver {
	case DriverOracle:
		query := fmt.Sprintf(`
			INSERT INTO %s (trace_id, query_kind, read_at, reading_value, unit, sensor_port, fetched_at)
			VALUES (:1, :2, :3, :4, :5, :6, :7)
			RETURNING id INTO :8
		`, s.config.TableName)

		if _, err := s.db.ExecContext(ctx, query, append(args, sql.Out{Dest: &id})...); err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}

	default:
		query := s.db.Rebind(fmt.Sprintf(`
			INSERT INTO %s (trace_id, query_kind, read_at, reading_value, unit, sensor_port, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.config.TableName))

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get inserted id: %w", err)
		}
	}

	rec.ID = id
	s.logger.Debug("archived reading",
		zap.Int64("id", id),
		zap.String("trace_id", rec.TraceID),
		zap.String("query", rec.Query))

	return id, nil
}

// Latest returns up to limit readings for a query kind, newest first
func (s *Store) Latest(ctx context.Context, queryKind string, limit int) ([]models.ReadingRecord, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	page := "LIMIT ?"
	if s.config.Driver == DriverOracle {
		page = "FETCH FIRST ? ROWS ONLY"
	}

	query := s.db.Rebind(fmt.Sprintf(`
		SELECT id, trace_id, query_kind, read_at, reading_value, unit, sensor_port, fetched_at
		FROM %s
		WHERE query_kind = ?
		ORDER BY read_at DESC, id DESC
		%s
	`, s.config.TableName, page))

	var records []models.ReadingRecord
	if err := s.db.SelectContext(ctx, &records, query, queryKind, limit); err != nil {
		return nil, fmt.Errorf("failed to get latest readings: %w", err)
	}

	return records, nil
}

// Count returns the number of archived readings
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.config.TableName)
	if err := s.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

// HealthCheck performs a health check on the archive database
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("archive health check failed: %w", err)
	}

	stats := s.db.Stats()
	s.logger.Debug("archive health check",
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle))

	return nil
}

// Close closes the archive database
func (s *Store) Close() error {
	s.logger.Info("closing archive connection")
	return s.db.Close()
}
