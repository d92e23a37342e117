package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/domain/distribution"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

// snapshotLockKey serializes snapshot replacement across processes.
const snapshotLockKey int64 = 0x7464_736e_6170 // "tdsnap"

var taskColumns = []string{"batch_id", "dist_position", "position", "first_name", "phone", "notes"}

// ReplaceSnapshot swaps the stored snapshot for b in one transaction.
// Concurrent readers keep seeing the previous snapshot until commit.
func (s *Store) ReplaceSnapshot(ctx context.Context, b distribution.Batch) error {
	batchID, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("batch id %q: %w", b.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM distribution_batches`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO distribution_batches (id, source, created_at) VALUES ($1, $2, $3)`,
		batchID, b.Source, b.CreatedAt); err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}

	if len(b.Distributions) > 0 {
		batch := &pgx.Batch{}
		for pos, d := range b.Distributions {
			batch.Queue(`INSERT INTO distributions (batch_id, position, agent_id) VALUES ($1, $2, $3)`,
				batchID, pos, d.AgentID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert distributions: %w", err)
		}

		rows := taskRows(batchID, b.Distributions)
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"distribution_tasks"}, taskColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy tasks: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy tasks: wrote %d of %d rows", n, len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace snapshot: %w", err)
	}
	return nil
}

func taskRows(batchID uuid.UUID, snap distribution.Snapshot) [][]any {
	rows := make([][]any, 0, snap.TaskCount())
	for dp, d := range snap {
		for tp, t := range d.Tasks {
			rows = append(rows, []any{batchID, int32(dp), int32(tp), t.FirstName, t.Phone, t.Notes})
		}
	}
	return rows
}

// ListSnapshot reads distributions and tasks from one consistent snapshot.
func (s *Store) ListSnapshot(ctx context.Context) ([]distribution.Entry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin list snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only

	rows, err := tx.Query(ctx,
		`SELECT d.agent_id::text, a.name, a.email
		 FROM distributions d
		 LEFT JOIN agents a ON a.id = d.agent_id
		 ORDER BY d.position`)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	entries := []distribution.Entry{}
	for rows.Next() {
		var (
			id          string
			name, email *string
		)
		if err := rows.Scan(&id, &name, &email); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		ref := agent.UnknownRef(id)
		if name != nil {
			ref = agent.Ref{ID: id, Name: *name, Email: *email}
		}
		entries = append(entries, distribution.Entry{Agent: ref, Tasks: []record.Task{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}

	rows, err = tx.Query(ctx,
		`SELECT dist_position, first_name, phone, notes
		 FROM distribution_tasks
		 ORDER BY dist_position, position`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pos int
			t   record.Task
		)
		if err := rows.Scan(&pos, &t.FirstName, &t.Phone, &t.Notes); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if pos < 0 || pos >= len(entries) {
			return nil, fmt.Errorf("task references missing distribution %d", pos)
		}
		entries[pos].Tasks = append(entries[pos].Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return entries, nil
}

// LatestBatch returns metadata of the upload that produced the current
// snapshot, without its distributions.
func (s *Store) LatestBatch(ctx context.Context) (*distribution.Batch, error) {
	var b distribution.Batch
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, source, created_at FROM distribution_batches ORDER BY created_at DESC LIMIT 1`).
		Scan(&b.ID, &b.Source, &b.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "latest batch")
	}
	return &b, nil
}
