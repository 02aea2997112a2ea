package events

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo stores events in agent_events. Every query runs under a bounded
// timeout; telephony callbacks have hard response budgets.
type PostgresRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRepo(db *sql.DB, timeout time.Duration) *PostgresRepo {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
INSERT INTO agent_events (id, call_id, type, occurred_at, data, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, string(e.Type), e.OccurredAt, []byte(e.Data), e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string, types ...Type) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const base = `
SELECT id, call_id, type, occurred_at, data, created_at
FROM agent_events
WHERE call_id = $1
`
	const order = `ORDER BY occurred_at ASC, created_at ASC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(types) == 0 {
		rows, err = r.db.QueryContext(ctx, base+order, callID)
	} else {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		rows, err = r.db.QueryContext(ctx, base+`AND type = ANY($2) `+order, callID, names)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e    Event
			typ  string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.CallID, &typ, &e.OccurredAt, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = Type(typ)
		e.Data = data
		out = append(out, e)
	}
	return out, rows.Err()
}
