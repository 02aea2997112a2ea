package numbers

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresDirectory reads phone_numbers joined with the agent name.
type PostgresDirectory struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresDirectory(db *sql.DB, timeout time.Duration) *PostgresDirectory {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresDirectory{db: db, timeout: timeout}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, number string) (PhoneNumber, error) {
	number = Normalize(number)
	if number == "" {
		return PhoneNumber{}, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	const q = `
SELECT number, organization_id, agent_id, agent_name, team_number, created_at
FROM phone_numbers
WHERE number = $1
`
	var n PhoneNumber
	var agentName, team sql.NullString
	err := d.db.QueryRowContext(ctx, q, number).Scan(
		&n.Number,
		&n.OrganizationID,
		&n.AgentID,
		&agentName,
		&team,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PhoneNumber{}, ErrNotFound
		}
		return PhoneNumber{}, err
	}
	n.AgentName = agentName.String
	n.TeamNumber = team.String
	return n, nil
}
