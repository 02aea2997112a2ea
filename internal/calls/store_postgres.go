package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"voice-agent-platform/internal/latency"
)

// NOTE: This store assumes the calls table from internal/db/migrations exists,
// including the partial unique index on room_name.

const uniqueViolation = "23505"

const selectCall = `
SELECT id, organization_id, agent_id, provider_call_id, room_name, caller_phone_number, called_number,
       status, transfer_target, ended_at, duration_seconds, transcript, usage, config_snapshot,
       recording_url, latency_stats, created_at, updated_at
FROM calls
`

// PostgresStore persists calls via database/sql (pgx stdlib driver).
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.OrganizationID == "" {
		return ErrInvalidArgument
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	transcript, err := marshalNullable(c.Transcript)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO calls (
  id, organization_id, agent_id, provider_call_id, room_name, caller_phone_number, called_number,
  status, transfer_target, transcript, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err = s.db.ExecContext(ctx, q,
		c.ID,
		c.OrganizationID,
		nullString(c.AgentID),
		nullString(c.ProviderCallID),
		nullString(c.RoomName),
		nullString(c.CallerPhoneNumber),
		nullString(c.CalledNumber),
		string(c.Status),
		nullString(c.TransferTarget),
		transcript,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return mapErr(err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	return s.one(ctx, selectCall+`WHERE id = $1`, id)
}

func (s *PostgresStore) GetForOrganization(ctx context.Context, organizationID, id string) (Call, error) {
	if organizationID == "" {
		return Call{}, ErrNotFound
	}
	return s.one(ctx, selectCall+`WHERE organization_id = $1 AND id = $2`, organizationID, id)
}

func (s *PostgresStore) FindByRoomName(ctx context.Context, roomName string) (Call, error) {
	return s.one(ctx, selectCall+`WHERE room_name = $1`, roomName)
}

func (s *PostgresStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	return s.one(ctx, selectCall+`WHERE provider_call_id = $1 ORDER BY created_at DESC LIMIT 1`, providerCallID)
}

func (s *PostgresStore) FindRecentByCaller(ctx context.Context, agentID, caller string, since time.Time) (Call, error) {
	return s.one(ctx, selectCall+`
WHERE agent_id = $1 AND caller_phone_number = $2 AND created_at >= $3
ORDER BY created_at DESC
LIMIT 1`, agentID, caller, since)
}

func (s *PostgresStore) Update(ctx context.Context, id string, p Patch, now time.Time) error {
	if p.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.RoomName != nil {
		set("room_name", nullString(*p.RoomName))
	}
	if p.ProviderCallID != nil {
		set("provider_call_id", nullString(*p.ProviderCallID))
	}
	if p.TransferTarget != nil {
		set("transfer_target", nullString(*p.TransferTarget))
	}
	if p.EndedAt != nil {
		set("ended_at", *p.EndedAt)
	}
	if p.DurationSeconds != nil {
		set("duration_seconds", *p.DurationSeconds)
	}
	if p.Transcript != nil {
		b, err := json.Marshal(p.Transcript)
		if err != nil {
			return err
		}
		set("transcript", b)
	}
	if p.Usage != nil {
		set("usage", []byte(p.Usage))
	}
	if p.ConfigSnapshot != nil {
		set("config_snapshot", []byte(p.ConfigSnapshot))
	}
	if p.RecordingURL != nil {
		set("recording_url", nullString(*p.RecordingURL))
	}
	set("updated_at", now.UTC())

	args = append(args, id)
	q := fmt.Sprintf("UPDATE calls SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.execOne(ctx, q, args...)
}

func (s *PostgresStore) SaveLatencyStats(ctx context.Context, id string, stats *latency.ByCategory) error {
	b, err := marshalNullable(stats)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.execOne(ctx, `UPDATE calls SET latency_stats = $1 WHERE id = $2`, b, id)
}

func (s *PostgresStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) one(ctx context.Context, q string, args ...any) (Call, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var c Call
	var agentID, providerCallID, roomName, caller, called, target, recording sql.NullString
	var status string
	var endedAt sql.NullTime
	var duration sql.NullInt64
	var transcript, usage, config, stats []byte
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&c.ID,
		&c.OrganizationID,
		&agentID,
		&providerCallID,
		&roomName,
		&caller,
		&called,
		&status,
		&target,
		&endedAt,
		&duration,
		&transcript,
		&usage,
		&config,
		&recording,
		&stats,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}

	c.AgentID = agentID.String
	c.ProviderCallID = providerCallID.String
	c.RoomName = roomName.String
	c.CallerPhoneNumber = caller.String
	c.CalledNumber = called.String
	c.Status = Status(status)
	c.TransferTarget = target.String
	c.RecordingURL = recording.String
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationSeconds = &d
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &c.Transcript); err != nil {
			return Call{}, fmt.Errorf("calls: decode transcript: %w", err)
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &c.LatencyStats); err != nil {
			return Call{}, fmt.Errorf("calls: decode latency_stats: %w", err)
		}
	}
	if len(usage) > 0 {
		c.Usage = usage
	}
	if len(config) > 0 {
		c.ConfigSnapshot = config
	}
	return c, nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "room_name") {
		return ErrRoomNameTaken
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// marshalNullable encodes v as JSON, mapping nil slices and pointers to SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *latency.ByCategory:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}
