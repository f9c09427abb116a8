package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vidqueue/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	stateQueued    = "queued"
	stateActive    = "active"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// SQLiteTransport is a Transport backed by a local SQLite database. Several
// processes on one host may share the database file.
type SQLiteTransport struct {
	db           *sql.DB
	pollInterval time.Duration
	wake         chan struct{}
	now          func() time.Time
}

// OpenSQLite opens (or creates) the queue database at path.
func OpenSQLite(path string, pollInterval time.Duration) (*SQLiteTransport, error) {
	db, err := sqlitex.Open(path, schemaSQL, schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SQLiteTransport{
		db:           db,
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
		now:          time.Now,
	}, nil
}

func (s *SQLiteTransport) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTransport) Enqueue(ctx context.Context, task Task) error {
	if task.JobID == "" || task.StoredFilename == "" {
		return errors.New("enqueue: job id and stored filename are required")
	}
	now := s.now()
	err := sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var pending int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM tasks WHERE job_id = ? AND state IN (?, ?)",
			task.JobID, stateQueued, stateActive,
		).Scan(&pending); err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("job %s: %w", task.JobID, ErrAlreadyQueued)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (job_id, stored_filename, content, state, attempts, available_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
			task.JobID,
			task.StoredFilename,
			task.Content,
			stateQueued,
			now.UnixMilli(),
			sqlitex.FormatTime(now),
			sqlitex.FormatTime(now),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	s.notify()
	return nil
}

func (s *SQLiteTransport) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SQLiteTransport) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		d, err := s.claimNext(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *SQLiteTransport) claimNext(ctx context.Context) (*Delivery, error) {
	var delivery *Delivery
	err := sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		delivery = nil
		now := s.now()
		var (
			id       int64
			jobID    string
			stored   string
			content  []byte
			attempts int
			created  sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT t.id, t.job_id, t.stored_filename, t.content, t.attempts, t.created_at FROM tasks t
             WHERE t.state = ? AND t.available_at <= ?
               AND NOT EXISTS (SELECT 1 FROM tasks a WHERE a.job_id = t.job_id AND a.state = ?)
             ORDER BY t.available_at, t.id LIMIT 1`,
			stateQueued, now.UnixMilli(), stateActive,
		).Scan(&id, &jobID, &stored, &content, &attempts, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET state = ?, attempts = attempts + 1, heartbeat_at = ?, updated_at = ?
             WHERE id = ? AND state = ?`,
			stateActive, now.UnixMilli(), sqlitex.FormatTime(now), id, stateQueued,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}
		delivery = &Delivery{
			Task: Task{
				JobID:          jobID,
				StoredFilename: stored,
				Content:        content,
				EnqueuedAt:     sqlitex.ParseTime(created),
			},
			Attempt: attempts + 1,
			receipt: strconv.FormatInt(id, 10),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return delivery, nil
}

// settle updates an active task; it reports ErrStaleDelivery when the task is
// no longer active.
func (s *SQLiteTransport) settle(ctx context.Context, d *Delivery, query string, args ...any) error {
	if d == nil {
		return errors.New("nil delivery")
	}
	id, err := strconv.ParseInt(d.receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid delivery receipt %q", d.receipt)
	}
	args = append(args, id, stateActive)
	res, err := sqlitex.Exec(ctx, s.db, query+" WHERE id = ? AND state = ?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrStaleDelivery)
	}
	return nil
}

func (s *SQLiteTransport) Ack(ctx context.Context, d *Delivery) error {
	now := sqlitex.FormatTime(s.now())
	if err := s.settle(ctx, d,
		"UPDATE tasks SET state = ?, content = NULL, heartbeat_at = NULL, last_error = NULL, finished_at = ?, updated_at = ?",
		stateCompleted, now, now,
	); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

func (s *SQLiteTransport) Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error {
	now := s.now()
	if err := s.settle(ctx, d,
		"UPDATE tasks SET state = ?, available_at = ?, heartbeat_at = NULL, last_error = ?, updated_at = ?",
		stateQueued, now.Add(delay).UnixMilli(), sqlitex.NullString(causeMessage(cause)), sqlitex.FormatTime(now),
	); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	s.notify()
	return nil
}

func (s *SQLiteTransport) Fail(ctx context.Context, d *Delivery, cause error) error {
	now := sqlitex.FormatTime(s.now())
	if err := s.settle(ctx, d,
		"UPDATE tasks SET state = ?, content = NULL, heartbeat_at = NULL, last_error = ?, finished_at = ?, updated_at = ?",
		stateFailed, sqlitex.NullString(causeMessage(cause)), now, now,
	); err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	return nil
}

func (s *SQLiteTransport) Heartbeat(ctx context.Context, d *Delivery) error {
	now := s.now()
	if err := s.settle(ctx, d, "UPDATE tasks SET heartbeat_at = ?, updated_at = ?",
		now.UnixMilli(), sqlitex.FormatTime(now),
	); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *SQLiteTransport) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := s.now()
	res, err := sqlitex.Exec(ctx, s.db,
		`UPDATE tasks SET state = ?, available_at = ?, heartbeat_at = NULL, last_error = 'reclaimed after missed heartbeats', updated_at = ?
         WHERE state = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		stateQueued, now.UnixMilli(), sqlitex.FormatTime(now), stateActive, cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notify()
	}
	return n, nil
}

func (s *SQLiteTransport) Recover(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := sqlitex.Exec(ctx, s.db,
		`UPDATE tasks SET state = ?, available_at = ?, heartbeat_at = NULL, updated_at = ? WHERE state = ?`,
		stateQueued, now.UnixMilli(), sqlitex.FormatTime(now), stateActive,
	)
	if err != nil {
		return 0, fmt.Errorf("recover active tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteTransport) Prune(ctx context.Context, keep Retention) (int64, error) {
	var total int64
	for _, bound := range []struct {
		state string
		keep  int
	}{
		{stateCompleted, keep.Completed},
		{stateFailed, keep.Failed},
	} {
		res, err := sqlitex.Exec(ctx, s.db,
			`DELETE FROM tasks WHERE state = ? AND id NOT IN (
                SELECT id FROM tasks WHERE state = ? ORDER BY finished_at DESC, id DESC LIMIT ?
             )`,
			bound.state, bound.state, max(bound.keep, 0),
		)
		if err != nil {
			return total, fmt.Errorf("prune %s tasks: %w", bound.state, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteTransport) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, available_at > ? AS delayed, COUNT(1) FROM tasks GROUP BY state, delayed`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state   string
			delayed bool
			n       int
		)
		if err := rows.Scan(&state, &delayed, &n); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		switch state {
		case stateQueued:
			if delayed {
				stats.Delayed += n
			} else {
				stats.Queued += n
			}
		case stateActive:
			stats.Active += n
		case stateCompleted:
			stats.Completed += n
		case stateFailed:
			stats.Failed += n
		}
	}
	return stats, rows.Err()
}
