// Package store provides the relational, ACID-backed persistence the
// engine and gateway need for executions, checkpoints, and the credit
// ledger: a pure-Go SQLite database reached through sqlx, brought up to
// schema with embedded goose migrations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/smartspec/smartspec/pkg/engine"
	"github.com/smartspec/smartspec/pkg/gateway"
)

// Store is the concrete persistence layer satisfying both
// engine.Store and gateway.Store.
type Store struct {
	db *sqlx.DB

	// userLocks serializes ApplyTransaction's read-append-update section
	// per user id, matching the row-level-lock requirement on top of
	// SQLite's own transaction isolation.
	userLocks keyMutex
}

// Open opens (creating if absent) a SQLite database at path and
// migrates it to the latest schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no built-in connection pool semantics for writers

	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

var _ engine.Store = (*Store)(nil)
var _ gateway.Store = (*Store)(nil)

// --- engine.Store ---

func (s *Store) SaveExecution(ctx context.Context, e engine.Execution) error {
	args, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("store: marshaling execution args: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_name, args, status, step_count, step_index, started_at, ended_at, latest_checkpoint_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowName, string(args), e.Status, e.StepCount, e.StepIndex, e.StartedAt, e.EndedAt, e.LatestCheckpointID, e.Error)
	return err
}

func (s *Store) UpdateExecution(ctx context.Context, e engine.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE executions SET status = ?, step_index = ?, ended_at = ?, latest_checkpoint_id = ?, error = ?
		WHERE id = ?`,
		e.Status, e.StepIndex, e.EndedAt, e.LatestCheckpointID, e.Error, e.ID)
	return err
}

func (s *Store) SaveCheckpoint(ctx context.Context, c engine.Checkpoint) error {
	completed, err := json.Marshal(c.CompletedStepIDs)
	if err != nil {
		return fmt.Errorf("store: marshaling checkpoint completed step ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, execution_id, step_index, step_name, state, completed_step_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExecutionID, c.StepIndex, c.StepName, c.State, string(completed), c.Timestamp)
	return err
}

func (s *Store) LoadCheckpoint(ctx context.Context, checkpointID string) (engine.Checkpoint, error) {
	var row checkpointRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM checkpoints WHERE id = ?`, checkpointID); err != nil {
		return engine.Checkpoint{}, fmt.Errorf("store: loading checkpoint %q: %w", checkpointID, err)
	}
	return row.toCheckpoint()
}

type checkpointRow struct {
	ID               string    `db:"id"`
	ExecutionID      string    `db:"execution_id"`
	StepIndex        int       `db:"step_index"`
	StepName         string    `db:"step_name"`
	State            []byte    `db:"state"`
	CompletedStepIDs string    `db:"completed_step_ids"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r checkpointRow) toCheckpoint() (engine.Checkpoint, error) {
	var completed []string
	if r.CompletedStepIDs != "" {
		if err := json.Unmarshal([]byte(r.CompletedStepIDs), &completed); err != nil {
			return engine.Checkpoint{}, fmt.Errorf("store: unmarshaling checkpoint completed step ids: %w", err)
		}
	}
	return engine.Checkpoint{
		ID: r.ID, ExecutionID: r.ExecutionID, StepIndex: r.StepIndex,
		StepName: r.StepName, State: r.State, CompletedStepIDs: completed,
		Timestamp: r.CreatedAt,
	}, nil
}

// --- gateway.Store ---

func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `SELECT credit_balance FROM users WHERE id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("store: reading balance for user %q: %w", userID, err)
	}
	return balance, nil
}

// ApplyTransaction implements the gateway's atomic append-and-update
// step (transaction-order step 6): under a per-user in-process lock
// plus a database transaction, it reads the current balance, appends
// a ledger row, and updates the user's balance in one commit.
func (s *Store) ApplyTransaction(ctx context.Context, userID string, kind gateway.TransactionKind, amount int64, metadata map[string]string) (gateway.CreditTransaction, error) {
	unlock := s.userLocks.lock(userID)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var before int64
	if err := tx.GetContext(ctx, &before, `SELECT credit_balance FROM users WHERE id = ?`, userID); err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: reading balance for user %q: %w", userID, err)
	}
	after := before + amount

	meta, err := json.Marshal(metadata)
	if err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: marshaling transaction metadata: %w", err)
	}

	row := gateway.CreditTransaction{
		ID: uuid.NewString(), UserID: userID, Kind: kind, AmountCredits: amount,
		BalanceBefore: before, BalanceAfter: after, Metadata: metadata, CreatedAt: time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, kind, amount_credits, balance_before, balance_after, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.Kind, row.AmountCredits, row.BalanceBefore, row.BalanceAfter, string(meta), row.CreatedAt); err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: appending transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET credit_balance = ? WHERE id = ?`, after, userID); err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: updating balance for user %q: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return gateway.CreditTransaction{}, fmt.Errorf("store: committing transaction: %w", err)
	}

	return row, nil
}

// keyMutex serializes operations keyed by an arbitrary string,
// generalizing the per-spec-id bundle mutex to per-user credit
// transactions.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (m *keyMutex) lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
