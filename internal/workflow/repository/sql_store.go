package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	readPageSize     = 100
	maxApplyAttempts = 5
)

// SQLStore keeps instances in one table and their steps in another. A
// mutation updates both inside one transaction guarded by a version column.
// SQLite databases must be opened with a single connection.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore creates a store over db.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateTables creates the schema if it does not exist.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_instances (
			id TEXT PRIMARY KEY,
			idempotency_key TEXT UNIQUE,
			community_id TEXT NOT NULL,
			route TEXT NOT NULL,
			question TEXT NOT NULL,
			response TEXT,
			metadata TEXT NOT NULL,
			current_step TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			step_count BIGINT NOT NULL DEFAULT 0,
			last_step_at BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			chat_id TEXT,
			enable_answer_skipping INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			workflow_id TEXT NOT NULL REFERENCES workflow_instances(id),
			seq BIGINT NOT NULL,
			step_name TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (workflow_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_instances_community ON workflow_instances(community_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_instances_status ON workflow_instances(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.sqlErr("create tables", err)
		}
	}
	return nil
}

const instanceColumns = `id, idempotency_key, community_id, route, question, response, metadata,
	current_step, status, step_count, chat_id, enable_answer_skipping, created_at, updated_at`

func (s *SQLStore) Insert(ctx context.Context, inst *WorkflowInstance) error {
	route, err := json.Marshal(inst.Route)
	if err != nil {
		return fmt.Errorf("insert: encode route: %w", err)
	}
	question, err := json.Marshal(inst.Question)
	if err != nil {
		return fmt.Errorf("insert: encode question: %w", err)
	}
	metadata, err := encodeMap(inst.Metadata)
	if err != nil {
		return fmt.Errorf("insert: encode metadata: %w", err)
	}
	var response sql.NullString
	if inst.Response != nil {
		b, err := json.Marshal(inst.Response)
		if err != nil {
			return fmt.Errorf("insert: encode response: %w", err)
		}
		response = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.sqlErr("insert", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO workflow_instances
		(id, idempotency_key, community_id, route, question, response, metadata, current_step,
		 status, step_count, last_step_at, chat_id, enable_answer_skipping, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inst.ID, nullString(inst.IdempotencyKey), inst.CommunityID, string(route), string(question),
		response, metadata, inst.CurrentStep, string(inst.Status), len(inst.Steps), lastStepAt(inst),
		nullString(inst.ChatID), boolInt(inst.EnableAnswerSkipping),
		inst.CreatedAt.UnixNano(), inst.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return s.sqlErr("insert", err)
	}
	for i, ev := range inst.Steps {
		if err := s.insertStep(ctx, tx, inst.ID, int64(i), ev); err != nil {
			return err
		}
	}
	return s.sqlErr("insert", tx.Commit())
}

func (s *SQLStore) Get(ctx context.Context, id string) (*WorkflowInstance, error) {
	return s.getOne(ctx, "get", `id = ?`, id)
}

func (s *SQLStore) GetByIdempotencyKey(ctx context.Context, key string) (*WorkflowInstance, error) {
	return s.getOne(ctx, "get by idempotency key", `idempotency_key = ?`, key)
}

// getOne reads the instance row and its steps in one transaction so the
// step counters agree with the steps returned.
func (s *SQLStore) getOne(ctx context.Context, op, where string, arg any) (*WorkflowInstance, error) {
	tx, err := s.db.BeginTx(ctx, s.readTxOptions())
	if err != nil {
		return nil, s.sqlErr(op, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+instanceColumns+` FROM workflow_instances WHERE `+where), arg)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, s.sqlErr(op, err)
	}
	steps, err := s.loadSteps(ctx, tx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.Steps = steps
	return inst, s.sqlErr(op, tx.Commit())
}

// readTxOptions returns options for a transaction whose statements share one
// snapshot. A deferred SQLite transaction already does.
func (s *SQLStore) readTxOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]*WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE 1=1`
	var args []any
	if f.CommunityID != "" {
		query += ` AND community_id = ?`
		args = append(args, f.CommunityID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	} else if f.Offset > 0 && s.dialect == DialectSQLite {
		query += ` LIMIT -1`
	}
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.sqlErr("list", err)
	}
	var out []*WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, s.sqlErr("list", err)
		}
		out = append(out, inst)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, s.sqlErr("list", err)
	}
	for _, inst := range out {
		if inst.Steps, err = s.loadSteps(ctx, s.db, inst.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) Apply(ctx context.Context, id string, m Mutation) (Seq, error) {
	m = m.stamped(s.now())
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		seq, err := s.applyOnce(ctx, id, m)
		if !errors.Is(err, errVersionConflict) {
			return seq, err
		}
	}
	return NoSeq, &StorageError{Op: "apply", Kind: ErrStorageUnavailable, Cause: errVersionConflict}
}

var errVersionConflict = errors.New("concurrent update conflict")

func (s *SQLStore) applyOnce(ctx context.Context, id string, m Mutation) (Seq, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NoSeq, s.sqlErr("apply", err)
	}
	defer tx.Rollback()

	query := `SELECT status, response IS NOT NULL, step_count, last_step_at, version, metadata
		FROM workflow_instances WHERE id = ?`
	if s.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	var (
		status      string
		hasResponse bool
		stepCount   int64
		lastAt      int64
		version     int64
		metadataRaw string
	)
	err = tx.QueryRowContext(ctx, s.rebind(query), id).
		Scan(&status, &hasResponse, &stepCount, &lastAt, &version, &metadataRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return NoSeq, ErrInstanceNotFound
	}
	if err != nil {
		return NoSeq, s.sqlErr("apply", err)
	}
	if !m.admits(Status(status), hasResponse) {
		return NoSeq, ErrPreconditionFailed
	}

	now := s.now()
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{now.UnixNano()}
	seq := NoSeq

	if m.Event != nil {
		ev := *m.Event
		if ts := ev.Timestamp.UnixNano(); ts < lastAt {
			ev.Timestamp = time.Unix(0, lastAt).UTC()
		}
		seq = Seq(stepCount)
		if err := s.insertStep(ctx, tx, id, stepCount, ev); err != nil {
			return NoSeq, err
		}
		sets = append(sets, "current_step = ?", "step_count = ?", "last_step_at = ?")
		args = append(args, ev.StepName, stepCount+1, ev.Timestamp.UnixNano())
	}
	if m.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(m.Status))
	}
	if m.Response != nil {
		b, err := json.Marshal(m.Response)
		if err != nil {
			return NoSeq, fmt.Errorf("apply: encode response: %w", err)
		}
		sets = append(sets, "response = ?")
		args = append(args, string(b))
	}
	if len(m.Metadata) > 0 {
		merged, err := decodeMap(metadataRaw)
		if err != nil {
			return NoSeq, fmt.Errorf("apply: decode metadata: %w", err)
		}
		for k, v := range m.Metadata {
			merged[k] = v
		}
		enc, err := encodeMap(merged)
		if err != nil {
			return NoSeq, fmt.Errorf("apply: encode metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, enc)
	}

	args = append(args, id, version)
	res, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE workflow_instances SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`), args...)
	if err != nil {
		return NoSeq, s.sqlErr("apply", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return NoSeq, s.sqlErr("apply", err)
	} else if n == 0 {
		return NoSeq, errVersionConflict
	}
	if err := tx.Commit(); err != nil {
		return NoSeq, s.sqlErr("apply", err)
	}
	return seq, nil
}

func (s *SQLStore) insertStep(ctx context.Context, tx *sql.Tx, id string, seq int64, ev StepEvent) error {
	data, err := encodeMap(ev.Data)
	if err != nil {
		return fmt.Errorf("append: encode step data: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO workflow_steps (workflow_id, seq, step_name, created_at, data) VALUES (?, ?, ?, ?, ?)`),
		id, seq, ev.StepName, ev.Timestamp.UnixNano(), data)
	if isUniqueViolation(err) {
		return errVersionConflict
	}
	return s.sqlErr("append", err)
}

func (s *SQLStore) Append(ctx context.Context, id string, ev StepEvent) (Seq, error) {
	return s.Apply(ctx, id, Mutation{Event: &ev})
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Read pages through the steps table by sequence number.
func (s *SQLStore) Read(ctx context.Context, id string) iter.Seq2[StepEvent, error] {
	return s.read(ctx, s.db, id)
}

func (s *SQLStore) read(ctx context.Context, q querier, id string) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		var next int64
		for {
			page, err := s.stepPage(ctx, q, id, next)
			if err != nil {
				yield(StepEvent{}, err)
				return
			}
			if next == 0 && len(page) == 0 {
				if err := s.exists(ctx, q, id); err != nil {
					yield(StepEvent{}, err)
				}
				return
			}
			for _, ev := range page {
				if !yield(ev, nil) {
					return
				}
			}
			if len(page) < readPageSize {
				return
			}
			next += int64(len(page))
		}
	}
}

func (s *SQLStore) exists(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM workflow_instances WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInstanceNotFound
	}
	return s.sqlErr("read", err)
}

func (s *SQLStore) loadSteps(ctx context.Context, q querier, id string) ([]StepEvent, error) {
	steps := []StepEvent{}
	for ev, err := range s.read(ctx, q, id) {
		if err != nil {
			if errors.Is(err, ErrInstanceNotFound) {
				break
			}
			return nil, err
		}
		steps = append(steps, ev)
	}
	return steps, nil
}

func (s *SQLStore) stepPage(ctx context.Context, q querier, id string, from int64) ([]StepEvent, error) {
	rows, err := q.QueryContext(ctx, s.rebind(
		`SELECT step_name, created_at, data FROM workflow_steps
		 WHERE workflow_id = ? AND seq >= ? ORDER BY seq LIMIT ?`), id, from, readPageSize)
	if err != nil {
		return nil, s.sqlErr("read", err)
	}
	defer rows.Close()

	var page []StepEvent
	for rows.Next() {
		var (
			ev   StepEvent
			ts   int64
			data string
		)
		if err := rows.Scan(&ev.StepName, &ts, &data); err != nil {
			return nil, s.sqlErr("read", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		if ev.Data, err = decodeMap(data); err != nil {
			return nil, fmt.Errorf("read: decode step data: %w", err)
		}
		page = append(page, ev)
	}
	return page, s.sqlErr("read", rows.Err())
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*WorkflowInstance, error) {
	var (
		inst                              WorkflowInstance
		key, response, chatID             sql.NullString
		route, question, metadata, status string
		skipping                          int64
		createdAt, updatedAt              int64
	)
	err := row.Scan(&inst.ID, &key, &inst.CommunityID, &route, &question, &response, &metadata,
		&inst.CurrentStep, &status, &inst.StepCount, &chatID, &skipping, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	inst.IdempotencyKey = key.String
	inst.ChatID = chatID.String
	inst.Status = Status(status)
	inst.EnableAnswerSkipping = skipping != 0
	inst.CreatedAt = time.Unix(0, createdAt).UTC()
	inst.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if err := json.Unmarshal([]byte(route), &inst.Route); err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	if err := json.Unmarshal([]byte(question), &inst.Question); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	if response.Valid {
		inst.Response = &Response{}
		if err := json.Unmarshal([]byte(response.String), inst.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if inst.Metadata, err = decodeMap(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &inst, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
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

func (s *SQLStore) sqlErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if e := classifyContextErr(op, err); e != nil {
		return e
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		kind := ErrStorageUnavailable
		if netErr != nil && netErr.Timeout() {
			kind = ErrStorageTimeout
		}
		return &StorageError{Op: op, Kind: kind, Cause: err}
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY || sqliteErr.Code()&0xff == sqlite3.SQLITE_LOCKED) {
		return &StorageError{Op: op, Kind: ErrStorageUnavailable, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			msg := sqliteErr.Error()
			return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "PRIMARY KEY")
		}
	}
	return false
}

func encodeMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMap(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(s), &m)
	return m, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lastStepAt(inst *WorkflowInstance) int64 {
	if last, ok := inst.LastStep(); ok {
		return last.Timestamp.UnixNano()
	}
	return 0
}
