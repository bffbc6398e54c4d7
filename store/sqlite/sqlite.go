/*
Package sqlite provides a SQLite-backed implementation of the leave and
overtime persistence interfaces.

PURPOSE:
  One Store satisfies leave.Store, leave.CategoryConfig, overtime.Store and
  generic.TxRunner[overtime.Store]. Every query goes through a small ops
  type bound to either the *sql.DB or an open *sql.Tx, so the transactional
  view and the plain store run the same SQL.

KEY TABLES:
  users:              Profiles, annual quota (JSON) and the overtime snapshot
  leave_requests:     Requests; logs, attachments, approvals, correction as JSON
  settlement_records: One row per (user_id, year, month)
  workflow_groups:    Approval chains (steps and title rules as JSON)
  warning_rules:      Threshold rules
  leave_categories:   Category definitions

OVERTIME SNAPSHOT:
  users.overtime_days is written only by ApplyOvertimeSnapshots. SaveUser's
  upsert leaves the column alone.

DECIMALS:
  Hours and days are stored as TEXT in decimal.Decimal string form so values
  round-trip exactly.

WAL MODE:
  The database is opened with WAL: readers do not block, one writer at a
  time.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go, overtime/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	ops
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, ops: ops{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		workflow_group_id TEXT NOT NULL DEFAULT '',
		annual_quota_json TEXT NOT NULL DEFAULT '{}',
		overtime_days TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_partial_day INTEGER NOT NULL DEFAULT 0,
		start_time TEXT,
		end_time TEXT,
		reason TEXT NOT NULL DEFAULT '',
		deputy TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		total_steps INTEGER NOT NULL DEFAULT 0,
		approved_by_json TEXT NOT NULL DEFAULT '[]',
		logs_json TEXT NOT NULL DEFAULT '[]',
		attachments_json TEXT NOT NULL DEFAULT '[]',
		correction_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_user
		ON leave_requests(user_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status, category);

	CREATE TABLE IF NOT EXISTS settlement_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		applied_hours TEXT NOT NULL,
		actual_hours TEXT NOT NULL,
		paid_hours TEXT NOT NULL,
		remaining_hours TEXT NOT NULL,
		base_auth_json TEXT,
		pay_auth_json TEXT,
		settled_at TEXT NOT NULL,
		settled_by TEXT NOT NULL,
		UNIQUE(user_id, year, month)
	);

	CREATE TABLE IF NOT EXISTS workflow_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		steps_json TEXT NOT NULL DEFAULT '[]',
		title_rules_json TEXT NOT NULL DEFAULT '[]',
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warning_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_type TEXT NOT NULL,
		threshold TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_categories (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		quota_kind TEXT NOT NULL DEFAULT '',
		allowed_gender TEXT NOT NULL DEFAULT 'ALL'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (s *Store) ListRequests(ctx context.Context) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListRequests(ctx)
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetRequest(ctx, id)
}

func (s *Store) CreateRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.CreateRequest(ctx, r)
}

func (s *Store) UpdateRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.UpdateRequest(ctx, r)
}

func (s *Store) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.DeleteRequest(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListUsers(ctx)
}

func (s *Store) GetUser(ctx context.Context, id generic.UserID) (leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetUser(ctx, id)
}

func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveUser(ctx, u)
}

func (s *Store) ApplyOvertimeSnapshots(ctx context.Context, snaps []overtime.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(o ops) error { return o.ApplyOvertimeSnapshots(ctx, snaps) })
}

func (s *Store) ListSettlements(ctx context.Context) ([]overtime.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListSettlements(ctx)
}

func (s *Store) UpsertSettlements(ctx context.Context, records []overtime.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(o ops) error { return o.UpsertSettlements(ctx, records) })
}

func (s *Store) GroupForUser(ctx context.Context, userID generic.UserID) (leave.WorkflowGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.ops.GetUser(ctx, userID)
	if err != nil {
		return leave.WorkflowGroup{}, err
	}
	groups, err := s.ops.ListWorkflowGroups(ctx)
	if err != nil {
		return leave.WorkflowGroup{}, err
	}
	g, ok := leave.SelectGroup(groups, u)
	if !ok {
		return leave.WorkflowGroup{}, &generic.NotFoundError{Kind: "workflow group", ID: u.WorkflowGroupID}
	}
	return g, nil
}

func (s *Store) ListWorkflowGroups(ctx context.Context) ([]leave.WorkflowGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListWorkflowGroups(ctx)
}

func (s *Store) SaveWorkflowGroup(ctx context.Context, g leave.WorkflowGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveWorkflowGroup(ctx, g)
}

func (s *Store) ListWarningRules(ctx context.Context) ([]leave.WarningRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListWarningRules(ctx)
}

func (s *Store) SaveWarningRule(ctx context.Context, r leave.WarningRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveWarningRule(ctx, r)
}

func (s *Store) ListCategories(ctx context.Context) ([]leave.CategoryDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListCategories(ctx)
}

func (s *Store) SaveCategory(ctx context.Context, c leave.CategoryDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveCategory(ctx, c)
}

// Reset removes all data. Used by the demo loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(o ops) error {
		for _, table := range []string{"leave_requests", "settlement_records", "users", "workflow_groups", "warning_rules", "leave_categories"} {
			if _, err := o.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store's write lock
// is held for the duration.
func (s *Store) WithTx(ctx context.Context, fn func(overtime.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(o ops) error {
		return fn(&txStore{ops: o})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(ops) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ops{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the overtime.Store handed to WithTx callbacks.
type txStore struct {
	ops
}

// =============================================================================
// OPERATIONS
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops runs every query against q, which is either the database or an open
// transaction. Callers hold the store lock.
type ops struct {
	q querier
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

const requestColumns = `id, user_id, category, start_date, end_date, is_partial_day, start_time, end_time,
	reason, deputy, status, current_step, total_steps, approved_by_json, logs_json, attachments_json,
	correction_json, created_at, updated_at`

func (o ops) ListRequests(ctx context.Context) ([]leave.Request, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT `+requestColumns+` FROM leave_requests ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (o ops) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return leave.Request{}, &generic.NotFoundError{Kind: "request", ID: string(id)}
	}
	return r, err
}

func (o ops) CreateRequest(ctx context.Context, r leave.Request) error {
	args, err := requestArgs(r)
	if err != nil {
		return err
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (o ops) UpdateRequest(ctx context.Context, r leave.Request) error {
	args, err := requestArgs(r)
	if err != nil {
		return err
	}
	// id moves to the WHERE clause
	args = append(args[1:], r.ID)
	res, err := o.q.ExecContext(ctx, `
		UPDATE leave_requests SET
			user_id = ?, category = ?, start_date = ?, end_date = ?, is_partial_day = ?,
			start_time = ?, end_time = ?, reason = ?, deputy = ?, status = ?,
			current_step = ?, total_steps = ?, approved_by_json = ?, logs_json = ?,
			attachments_json = ?, correction_json = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "request", ID: string(r.ID)}
	}
	return nil
}

func (o ops) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "request", ID: string(id)}
	}
	return nil
}

func requestArgs(r leave.Request) ([]any, error) {
	approvedBy, err := marshalJSON(r.ApprovedBy, "[]")
	if err != nil {
		return nil, err
	}
	logs, err := marshalJSON(r.Logs, "[]")
	if err != nil {
		return nil, err
	}
	attachments, err := marshalJSON(r.Attachments, "[]")
	if err != nil {
		return nil, err
	}
	var correction sql.NullString
	if r.Correction != nil {
		b, err := json.Marshal(r.Correction)
		if err != nil {
			return nil, err
		}
		correction = sql.NullString{String: string(b), Valid: true}
	}
	return []any{
		r.ID, r.UserID, r.Category,
		r.Span.StartDate.String(), r.Span.EndDate.String(), r.Span.PartialDay,
		nullClock(r.Span.StartTime), nullClock(r.Span.EndTime),
		r.Reason, r.Deputy, r.Status, r.CurrentStep, r.TotalSteps,
		approvedBy, logs, attachments, correction,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (leave.Request, error) {
	var (
		r                              leave.Request
		startDate, endDate             string
		startTime, endTime, correction sql.NullString
		approvedBy, logs, attachments  string
		createdAt, updatedAt           string
	)
	if err := row.Scan(
		&r.ID, &r.UserID, &r.Category, &startDate, &endDate, &r.Span.PartialDay,
		&startTime, &endTime, &r.Reason, &r.Deputy, &r.Status, &r.CurrentStep, &r.TotalSteps,
		&approvedBy, &logs, &attachments, &correction, &createdAt, &updatedAt,
	); err != nil {
		return leave.Request{}, err
	}

	var err error
	if r.Span.StartDate, err = generic.ParseDate(startDate); err != nil {
		return leave.Request{}, err
	}
	if r.Span.EndDate, err = generic.ParseDate(endDate); err != nil {
		return leave.Request{}, err
	}
	if r.Span.StartTime, err = parseNullClock(startTime); err != nil {
		return leave.Request{}, err
	}
	if r.Span.EndTime, err = parseNullClock(endTime); err != nil {
		return leave.Request{}, err
	}
	if err := json.Unmarshal([]byte(approvedBy), &r.ApprovedBy); err != nil {
		return leave.Request{}, fmt.Errorf("decode approved_by: %w", err)
	}
	if err := json.Unmarshal([]byte(logs), &r.Logs); err != nil {
		return leave.Request{}, fmt.Errorf("decode logs: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &r.Attachments); err != nil {
		return leave.Request{}, fmt.Errorf("decode attachments: %w", err)
	}
	if correction.Valid {
		r.Correction = &leave.Correction{}
		if err := json.Unmarshal([]byte(correction.String), r.Correction); err != nil {
			return leave.Request{}, fmt.Errorf("decode correction: %w", err)
		}
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return r, nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

const userColumns = `id, employee_id, name, department, job_title, gender, workflow_group_id,
	annual_quota_json, overtime_days`

func (o ops) ListUsers(ctx context.Context) ([]leave.User, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []leave.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (o ops) GetUser(ctx context.Context, id generic.UserID) (leave.User, error) {
	u, err := scanUser(o.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return leave.User{}, &generic.NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, err
}

// SaveUser upserts the profile and annual quota. overtime_days is not in
// the update set.
func (o ops) SaveUser(ctx context.Context, u leave.User) error {
	annual := make(map[string]string, len(u.Quota.Annual))
	for year, days := range u.Quota.Annual {
		annual[strconv.Itoa(year)] = days.String()
	}
	annualJSON, err := json.Marshal(annual)
	if err != nil {
		return err
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO users (id, employee_id, name, department, job_title, gender, workflow_group_id,
			annual_quota_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			name = excluded.name,
			department = excluded.department,
			job_title = excluded.job_title,
			gender = excluded.gender,
			workflow_group_id = excluded.workflow_group_id,
			annual_quota_json = excluded.annual_quota_json,
			updated_at = excluded.updated_at
	`, u.ID, u.EmployeeID, u.Name, u.Department, u.JobTitle, u.Gender, u.WorkflowGroupID,
		string(annualJSON), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (o ops) ApplyOvertimeSnapshots(ctx context.Context, snaps []overtime.Snapshot) error {
	for _, snap := range snaps {
		if _, err := o.q.ExecContext(ctx,
			`UPDATE users SET overtime_days = ?, updated_at = ? WHERE id = ?`,
			snap.Days().String(), time.Now().UTC().Format(time.RFC3339), snap.UserID(),
		); err != nil {
			return fmt.Errorf("failed to write overtime snapshot for %s: %w", snap.UserID(), err)
		}
	}
	return nil
}

func scanUser(row scanner) (leave.User, error) {
	var (
		u                  leave.User
		annualJSON, otDays string
	)
	if err := row.Scan(&u.ID, &u.EmployeeID, &u.Name, &u.Department, &u.JobTitle, &u.Gender,
		&u.WorkflowGroupID, &annualJSON, &otDays); err != nil {
		return leave.User{}, err
	}
	var annual map[string]string
	if err := json.Unmarshal([]byte(annualJSON), &annual); err != nil {
		return leave.User{}, fmt.Errorf("decode annual quota: %w", err)
	}
	u.Quota.Annual = make(map[int]decimal.Decimal, len(annual))
	for year, days := range annual {
		y, err := strconv.Atoi(year)
		if err != nil {
			return leave.User{}, fmt.Errorf("decode annual quota year %q: %w", year, err)
		}
		if u.Quota.Annual[y], err = parseDecimal("annual quota", days); err != nil {
			return leave.User{}, err
		}
	}
	ot, err := parseDecimal("overtime_days", otDays)
	if err != nil {
		return leave.User{}, err
	}
	u.Quota.Overtime = ot
	return u, nil
}

// -----------------------------------------------------------------------------
// Settlements
// -----------------------------------------------------------------------------

func (o ops) ListSettlements(ctx context.Context) ([]overtime.Record, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, user_id, year, month, applied_hours, actual_hours, paid_hours, remaining_hours,
			base_auth_json, pay_auth_json, settled_at, settled_by
		FROM settlement_records
		ORDER BY year, month, user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []overtime.Record
	for rows.Next() {
		var (
			r                                overtime.Record
			month                            int
			applied, actual, paid, remaining string
			baseAuth, payAuth                sql.NullString
			settledAt                        string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Month.Year, &month, &applied, &actual, &paid, &remaining,
			&baseAuth, &payAuth, &settledAt, &r.SettledBy); err != nil {
			return nil, err
		}
		r.Month.Month = time.Month(month)
		for _, f := range []struct {
			column string
			raw    string
			dst    *decimal.Decimal
		}{
			{"applied_hours", applied, &r.AppliedHours},
			{"actual_hours", actual, &r.ActualHours},
			{"paid_hours", paid, &r.PaidHours},
			{"remaining_hours", remaining, &r.RemainingHours},
		} {
			if *f.dst, err = parseDecimal(f.column, f.raw); err != nil {
				return nil, fmt.Errorf("settlement %s: %w", r.ID, err)
			}
		}
		if r.BaseAuth, err = parseSignature(baseAuth); err != nil {
			return nil, err
		}
		if r.PayAuth, err = parseSignature(payAuth); err != nil {
			return nil, err
		}
		r.SettledAt, _ = time.Parse(time.RFC3339, settledAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertSettlements writes records keyed by (user_id, year, month). The
// stored id of an existing row is kept.
func (o ops) UpsertSettlements(ctx context.Context, records []overtime.Record) error {
	for _, r := range records {
		baseAuth, err := nullJSON(r.BaseAuth)
		if err != nil {
			return err
		}
		payAuth, err := nullJSON(r.PayAuth)
		if err != nil {
			return err
		}
		_, err = o.q.ExecContext(ctx, `
			INSERT INTO settlement_records (id, user_id, year, month, applied_hours, actual_hours,
				paid_hours, remaining_hours, base_auth_json, pay_auth_json, settled_at, settled_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, year, month) DO UPDATE SET
				applied_hours = excluded.applied_hours,
				actual_hours = excluded.actual_hours,
				paid_hours = excluded.paid_hours,
				remaining_hours = excluded.remaining_hours,
				base_auth_json = excluded.base_auth_json,
				pay_auth_json = excluded.pay_auth_json,
				settled_at = excluded.settled_at,
				settled_by = excluded.settled_by
		`, r.ID, r.UserID, r.Month.Year, int(r.Month.Month),
			r.AppliedHours.String(), r.ActualHours.String(), r.PaidHours.String(), r.RemainingHours.String(),
			baseAuth, payAuth, r.SettledAt.UTC().Format(time.RFC3339), r.SettledBy)
		if err != nil {
			return fmt.Errorf("failed to upsert settlement %s/%s: %w", r.UserID, r.Month, err)
		}
	}
	return nil
}

func parseSignature(ns sql.NullString) (*overtime.Signature, error) {
	if !ns.Valid {
		return nil, nil
	}
	var sig overtime.Signature
	if err := json.Unmarshal([]byte(ns.String), &sig); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return &sig, nil
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (o ops) ListWorkflowGroups(ctx context.Context) ([]leave.WorkflowGroup, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT id, name, steps_json, title_rules_json FROM workflow_groups ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []leave.WorkflowGroup
	for rows.Next() {
		var (
			g                 leave.WorkflowGroup
			steps, titleRules string
		)
		if err := rows.Scan(&g.ID, &g.Name, &steps, &titleRules); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &g.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of %s: %w", g.ID, err)
		}
		if err := json.Unmarshal([]byte(titleRules), &g.TitleRules); err != nil {
			return nil, fmt.Errorf("decode title rules of %s: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (o ops) SaveWorkflowGroup(ctx context.Context, g leave.WorkflowGroup) error {
	steps, err := marshalJSON(g.Steps, "[]")
	if err != nil {
		return err
	}
	titleRules, err := marshalJSON(g.TitleRules, "[]")
	if err != nil {
		return err
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO workflow_groups (id, name, steps_json, title_rules_json, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM workflow_groups))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			steps_json = excluded.steps_json,
			title_rules_json = excluded.title_rules_json
	`, g.ID, g.Name, steps, titleRules)
	return err
}

func (o ops) ListWarningRules(ctx context.Context) ([]leave.WarningRule, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, name, target_type, threshold, message, color
		FROM warning_rules ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []leave.WarningRule
	for rows.Next() {
		var (
			r         leave.WarningRule
			threshold string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.TargetType, &threshold, &r.Message, &r.Color); err != nil {
			return nil, err
		}
		if r.Threshold, err = parseDecimal("threshold", threshold); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (o ops) SaveWarningRule(ctx context.Context, r leave.WarningRule) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO warning_rules (id, name, target_type, threshold, message, color, position)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM warning_rules))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target_type = excluded.target_type,
			threshold = excluded.threshold,
			message = excluded.message,
			color = excluded.color
	`, r.ID, r.Name, r.TargetType, r.Threshold.String(), r.Message, r.Color)
	return err
}

func (o ops) ListCategories(ctx context.Context) ([]leave.CategoryDef, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT code, name, quota_kind, allowed_gender FROM leave_categories ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []leave.CategoryDef
	for rows.Next() {
		var d leave.CategoryDef
		if err := rows.Scan(&d.Code, &d.Name, &d.Quota, &d.AllowedGender); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (o ops) SaveCategory(ctx context.Context, d leave.CategoryDef) error {
	gender := d.AllowedGender
	if gender == "" {
		gender = leave.AllowAll
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO leave_categories (code, name, quota_kind, allowed_gender)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			quota_kind = excluded.quota_kind,
			allowed_gender = excluded.allowed_gender
	`, d.Code, d.Name, d.Quota, gender)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s %q: %w", column, s, err)
	}
	return d, nil
}

func nullClock(c *generic.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func parseNullClock(ns sql.NullString) (*generic.Clock, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	c, err := generic.ParseClock(ns.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func nullJSON(sig *overtime.Signature) (sql.NullString, error) {
	if sig == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(sig)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
