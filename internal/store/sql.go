package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect covers the few places sqlite and postgres disagree.
type dialect struct {
	name     string
	greatest string
	numbered bool // $1 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", greatest: "MAX"}
	postgresDialect = dialect{name: "postgres", greatest: "GREATEST", numbered: true}
)

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Options selects and configures a backend.
type Options struct {
	Driver       string // sqlite or postgres
	Path         string
	DSN          string
	MaxOpenConns int
}

// Connect opens the backend named by opts.Driver and applies migrations.
func Connect(opts Options) (*SQLStore, error) {
	switch opts.Driver {
	case "", "sqlite":
		return Open(opts.Path)
	case "postgres":
		return OpenPostgres(opts.DSN, opts.MaxOpenConns)
	default:
		return nil, ConfigurationError("connect", "unknown storage driver %q", opts.Driver)
	}
}

// Open opens (or creates) a sqlite database at dbPath.
func Open(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrateUp(db, sqliteDialect); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: sqliteDialect}, nil
}

// OpenPostgres connects to postgres at dsn.
func OpenPostgres(dsn string, maxOpenConns int) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := migrateUp(db, postgresDialect); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: postgresDialect}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// q rewrites ? placeholders for dialects that number them.
func (s *SQLStore) q(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const experimentColumns = `id, name, description, goal, status, split_a, auto_winner_enabled,
	auto_winner_threshold, auto_winner_days, winner_variant, start_date, end_date, created_at, updated_at`

const variantColumns = `id, experiment_id, variant_key, title, subtitle, description, button_text,
	button_link, impressions, clicks, conversions`

func (s *SQLStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	const op = "create experiment"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	defer tx.Rollback()

	now := time.Now()
	created := *exp
	created.Status = StatusDraft
	created.WinnerVariant = ""
	created.CreatedAt = time.Unix(now.Unix(), 0)
	created.UpdatedAt = created.CreatedAt

	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO experiments (name, description, goal, status, split_a, auto_winner_enabled,
			auto_winner_threshold, auto_winner_days, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		created.Name, created.Description, created.Goal, string(created.Status), created.SplitA,
		created.AutoWinnerEnabled, created.AutoWinnerThreshold, created.AutoWinnerDays,
		nullableUnix(created.StartDate), nullableUnix(created.EndDate), now.Unix(), now.Unix(),
	).Scan(&created.ID)
	if err != nil {
		return nil, classify(op, err)
	}

	created.Variants = make([]Variant, len(exp.Variants))
	for i, v := range exp.Variants {
		v.ExperimentID = created.ID
		v.Impressions, v.Clicks, v.Conversions = 0, 0, 0
		err := tx.QueryRowContext(ctx, s.q(`
			INSERT INTO variants (experiment_id, variant_key, title, subtitle, description, button_text, button_link)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			v.ExperimentID, v.Key, v.Title, v.Subtitle, v.Description, v.ButtonText, v.ButtonLink,
		).Scan(&v.ID)
		if err != nil {
			return nil, classify(op, err)
		}
		created.Variants[i] = v
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(op, err)
	}
	return &created, nil
}

func (s *SQLStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	const op = "get experiment"

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`), id)
	exp, err := scanExperiment(row)
	if err != nil {
		if IsNotFound(classify(op, err)) {
			return nil, NotFoundError(op, "experiment %d", id)
		}
		return nil, classify(op, err)
	}
	if err := s.loadVariants(ctx, op, []*Experiment{exp}); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLStore) ListExperiments(ctx context.Context, status Status) ([]*Experiment, error) {
	const op = "list experiments"

	query := `SELECT ` + experimentColumns + ` FROM experiments`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	exps := []*Experiment{}
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	rows.Close()

	if err := s.loadVariants(ctx, op, exps); err != nil {
		return nil, err
	}
	return exps, nil
}

func (s *SQLStore) CurrentExperiment(ctx context.Context, now time.Time) (*Experiment, error) {
	const op = "current experiment"

	ts := now.Unix()
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+experimentColumns+` FROM experiments
		WHERE status = ?
		  AND (start_date IS NULL OR start_date <= ?)
		  AND (end_date IS NULL OR end_date >= ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`), string(StatusRunning), ts, ts)
	exp, err := scanExperiment(row)
	if err != nil {
		if IsNotFound(classify(op, err)) {
			return nil, NotFoundError(op, "no running experiment")
		}
		return nil, classify(op, err)
	}
	if err := s.loadVariants(ctx, op, []*Experiment{exp}); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLStore) DeleteExperiment(ctx context.Context, id int64) error {
	const op = "delete experiment"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM experiments WHERE id = ? AND status <> ?`), id, string(StatusRunning))
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return s.missingOrState(ctx, tx, op, id, "cannot delete a running experiment")
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM variants WHERE experiment_id = ?`), id); err != nil {
		return classify(op, err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM events WHERE experiment_id = ?`), id); err != nil {
		return classify(op, err)
	}
	return classify(op, tx.Commit())
}

func (s *SQLStore) TransitionStatus(ctx context.Context, id int64, from, to Status, winner string, at time.Time) error {
	const op = "transition experiment"

	ts := at.Unix()
	var (
		query string
		args  []any
	)
	switch to {
	case StatusRunning:
		query = `UPDATE experiments SET status = ?, start_date = COALESCE(start_date, ?), updated_at = ?
			WHERE id = ? AND status = ?`
		args = []any{string(to), ts, ts, id, string(from)}
	case StatusCompleted:
		query = `UPDATE experiments SET status = ?, winner_variant = ?, end_date = ?, updated_at = ?
			WHERE id = ? AND status = ?`
		args = []any{string(to), nullableString(winner), ts, ts, id, string(from)}
	default:
		query = `UPDATE experiments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
		args = []any{string(to), ts, id, string(from)}
	}

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return s.missingOrState(ctx, s.db, op, id, "experiment %d is no longer %s", id, from)
	}
	return nil
}

// columnFor maps an event type to the counter it increments.
var columnFor = map[EventType]string{
	EventView:       "impressions",
	EventClick:      "clicks",
	EventConversion: "conversions",
}

// RecordEvent appends e and increments the matching variant counter in one
// transaction. Experiments that are draft or completed no longer accept
// events and report NotFound, as do unknown experiments and variants.
func (s *SQLStore) RecordEvent(ctx context.Context, e Event) error {
	const op = "record event"

	col, ok := columnFor[e.Type]
	if !ok {
		return ConfigurationError(op, "unknown event type %q", e.Type)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE variants SET `+col+` = `+col+` + 1
		WHERE experiment_id = ? AND variant_key = ?
		  AND EXISTS (SELECT 1 FROM experiments WHERE id = ? AND status IN (?, ?))`),
		e.ExperimentID, e.VariantKey, e.ExperimentID, string(StatusRunning), string(StatusPaused),
	)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return NotFoundError(op, "experiment %d variant %q is not accepting events", e.ExperimentID, e.VariantKey)
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO events (experiment_id, variant_key, event_type, visitor_hash, device_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.ExperimentID, e.VariantKey, string(e.Type), e.VisitorHash, e.DeviceType, created.Unix(),
	); err != nil {
		return classify(op, err)
	}

	return classify(op, tx.Commit())
}

func (s *SQLStore) SegmentCounts(ctx context.Context, experimentID int64) ([]SegmentCount, error) {
	const op = "segment counts"

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT variant_key, device_type,
			SUM(CASE WHEN event_type = 'view' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event_type = 'click' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event_type = 'conversion' THEN 1 ELSE 0 END)
		FROM events
		WHERE experiment_id = ?
		GROUP BY variant_key, device_type
		ORDER BY variant_key, device_type`), experimentID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var counts []SegmentCount
	for rows.Next() {
		var c SegmentCount
		if err := rows.Scan(&c.VariantKey, &c.DeviceType, &c.Impressions, &c.Clicks, &c.Conversions); err != nil {
			return nil, classify(op, err)
		}
		counts = append(counts, c)
	}
	return counts, classify(op, rows.Err())
}

func (s *SQLStore) ListEvents(ctx context.Context, experimentID int64) ([]*Event, error) {
	const op = "list events"

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, experiment_id, variant_key, event_type, visitor_hash, device_type, created_at
		FROM events WHERE experiment_id = ? ORDER BY created_at, id`), experimentID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e         Event
			eventType string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ExperimentID, &e.VariantKey, &eventType, &e.VisitorHash, &e.DeviceType, &createdAt); err != nil {
			return nil, classify(op, err)
		}
		e.Type = EventType(eventType)
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}
	return events, classify(op, rows.Err())
}

// RecountCounters rebuilds variant counters from the event stream. Counters
// only ever move up.
func (s *SQLStore) RecountCounters(ctx context.Context, experimentID int64) error {
	const op = "recount counters"

	recount := func(col string, t EventType) string {
		return fmt.Sprintf(`%s = %s(%s, (SELECT COUNT(*) FROM events
			WHERE events.experiment_id = variants.experiment_id
			  AND events.variant_key = variants.variant_key
			  AND events.event_type = '%s'))`, col, s.dialect.greatest, col, t)
	}

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE variants SET `+
		recount("impressions", EventView)+`, `+
		recount("clicks", EventClick)+`, `+
		recount("conversions", EventConversion)+
		` WHERE experiment_id = ?`), experimentID)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return NotFoundError(op, "experiment %d has no variants", experimentID)
	}
	return nil
}

func (s *SQLStore) GetConfig(ctx context.Context) (*GlobalConfig, error) {
	const op = "get config"

	var (
		cfg       GlobalConfig
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ab_active, default_split, auto_winner_enabled, auto_winner_threshold, auto_winner_days, updated_at
		FROM ab_config WHERE id = 1`,
	).Scan(&cfg.Active, &cfg.DefaultSplit, &cfg.AutoWinnerEnabled, &cfg.AutoWinnerThreshold, &cfg.AutoWinnerDays, &updatedAt)
	if err != nil {
		return nil, classify(op, err)
	}
	cfg.UpdatedAt = time.Unix(updatedAt, 0)
	return &cfg, nil
}

func (s *SQLStore) UpdateConfig(ctx context.Context, cfg GlobalConfig) (*GlobalConfig, error) {
	const op = "update config"

	if cfg.DefaultSplit < 0 || cfg.DefaultSplit > 100 {
		return nil, ConfigurationError(op, "default split %d outside 0-100", cfg.DefaultSplit)
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE ab_config SET ab_active = ?, default_split = ?, auto_winner_enabled = ?,
			auto_winner_threshold = ?, auto_winner_days = ?, updated_at = ?
		WHERE id = 1`),
		cfg.Active, cfg.DefaultSplit, cfg.AutoWinnerEnabled, cfg.AutoWinnerThreshold, cfg.AutoWinnerDays, now,
	)
	if err != nil {
		return nil, classify(op, err)
	}
	cfg.UpdatedAt = time.Unix(now, 0)
	return &cfg, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// missingOrState decides why a conditional write touched no rows.
func (s *SQLStore) missingOrState(ctx context.Context, db queryer, op string, id int64, format string, args ...any) error {
	var one int
	err := db.QueryRowContext(ctx, s.q(`SELECT 1 FROM experiments WHERE id = ?`), id).Scan(&one)
	if err != nil {
		if IsNotFound(classify(op, err)) {
			return NotFoundError(op, "experiment %d", id)
		}
		return classify(op, err)
	}
	return StateError(op, format, args...)
}

func (s *SQLStore) loadVariants(ctx context.Context, op string, exps []*Experiment) error {
	if len(exps) == 0 {
		return nil
	}

	byID := make(map[int64]*Experiment, len(exps))
	placeholders := make([]string, len(exps))
	args := make([]any, len(exps))
	for i, e := range exps {
		e.Variants = []Variant{}
		byID[e.ID] = e
		placeholders[i] = "?"
		args[i] = e.ID
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+variantColumns+` FROM variants
		WHERE experiment_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY experiment_id, variant_key`), args...)
	if err != nil {
		return classify(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.Key, &v.Title, &v.Subtitle, &v.Description,
			&v.ButtonText, &v.ButtonLink, &v.Impressions, &v.Clicks, &v.Conversions); err != nil {
			return classify(op, err)
		}
		if e, ok := byID[v.ExperimentID]; ok {
			e.Variants = append(e.Variants, v)
		}
	}
	return classify(op, rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*Experiment, error) {
	var (
		exp                  Experiment
		status               string
		winner               sql.NullString
		startDate, endDate   sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &exp.Goal, &status, &exp.SplitA,
		&exp.AutoWinnerEnabled, &exp.AutoWinnerThreshold, &exp.AutoWinnerDays, &winner,
		&startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	exp.Status = Status(status)
	exp.WinnerVariant = winner.String
	exp.StartDate = fromNullUnix(startDate)
	exp.EndDate = fromNullUnix(endDate)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
