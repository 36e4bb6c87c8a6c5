// services/common/metadata/metadata.go

// Package metadata registers one row per uploaded recording and answers
// listing queries over those rows.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/watchme-app/vault-api/services/common/models"
)

var (
	// Error is the class of invalid usage errors.
	Error = errs.Class("metadata")
	// ErrUnavailable is returned when the backend cannot serve the request.
	ErrUnavailable = errs.Class("metadata store unavailable")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultLimit = 50
	MaxLimit     = 1000
)

const columns = `id, device_id, recorded_at, file_path, local_date, time_block, file_size_bytes,
	transcriber_status, behavior_status, emotion_status, created_at`

// Filter narrows a listing. Dates are inclusive YYYY-MM-DD bounds on local_date.
type Filter struct {
	DeviceID  string
	StartDate string
	EndDate   string
	Limit     int
	Offset    int
}

// Normalized applies the default limit and clamps limit and offset.
func (f Filter) Normalized() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store is the audio_files table.
type Store struct {
	log    *zap.Logger
	db     *sql.DB
	driver string
}

// New prepares a connection pool without connecting. Every call reports
// ErrUnavailable until the backend can be reached.
func New(log *zap.Logger, driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, Error.New("unknown driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return &Store{log: log, db: db, driver: driver}, nil
}

// Open connects to driver ("postgres" or "sqlite") and verifies the connection.
func Open(ctx context.Context, log *zap.Logger, driver, dsn string) (*Store, error) {
	store, err := New(log, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("✅ Metadata store connected", zap.String("driver", driver))
	return store, nil
}

// Migrate creates the table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return ErrUnavailable.New("migrate: %v", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return ErrUnavailable.Wrap(s.db.PingContext(ctx))
}

// Insert registers rec and returns its id. A missing id or creation time is filled in.
func (s *Store) Insert(ctx context.Context, rec *models.AudioFile) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audio_files (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.ID, rec.DeviceID, rec.RecordedAt.Format(time.RFC3339Nano), rec.FilePath,
		rec.LocalDate, rec.TimeBlock, rec.FileSizeBytes,
		string(rec.TranscriberStatus), string(rec.BehaviorStatus), string(rec.EmotionStatus),
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", ErrUnavailable.Wrap(err)
	}
	return rec.ID, nil
}

// List returns one page of rows, newest slot first. No match is an empty page.
func (s *Store) List(ctx context.Context, filter Filter) (_ []models.AudioFile, err error) {
	filter = filter.Normalized()

	var where []string
	var args []any
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.StartDate != "" {
		where = append(where, "local_date >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where = append(where, "local_date <= ?")
		args = append(args, filter.EndDate)
	}

	query := `SELECT ` + columns + ` FROM audio_files`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY local_date DESC, time_block DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	defer func() { err = errs.Combine(err, ErrUnavailable.Wrap(rows.Close())) }()

	files := []models.AudioFile{}
	for rows.Next() {
		var f models.AudioFile
		var size sql.NullInt64
		var transcriber, behavior, emotion string
		err := rows.Scan(&f.ID, &f.DeviceID, scanTime{&f.RecordedAt}, &f.FilePath,
			&f.LocalDate, &f.TimeBlock, &size,
			&transcriber, &behavior, &emotion, scanTime{&f.CreatedAt})
		if err != nil {
			return nil, ErrUnavailable.Wrap(err)
		}
		f.FileSizeBytes = size.Int64
		f.TranscriberStatus = models.Status(transcriber)
		f.BehaviorStatus = models.Status(behavior)
		f.EmotionStatus = models.Status(emotion)
		files = append(files, f)
	}
	return files, ErrUnavailable.Wrap(rows.Err())
}

// Devices returns every registered device id, sorted and unique.
func (s *Store) Devices(ctx context.Context) (_ []string, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT device_id FROM audio_files ORDER BY device_id`)
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	defer func() { err = errs.Combine(err, ErrUnavailable.Wrap(rows.Close())) }()

	devices := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ErrUnavailable.Wrap(err)
		}
		devices = append(devices, id)
	}
	return devices, ErrUnavailable.Wrap(rows.Err())
}

// rebind turns ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scanTime reads timestamps stored natively (postgres) or as text (sqlite).
type scanTime struct{ t *time.Time }

func (s scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.t = time.Time{}
		return nil
	case time.Time:
		*s.t = v
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (s scanTime) parse(v string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999Z07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t
			return nil
		}
	}
	return fmt.Errorf("unparsable timestamp %q", v)
}
