package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to financial_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO financial_events (
  id, service, event_type, actor_id, actor_role, ip_address, amount, reference_id, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Service,
		e.Type,
		nullString(e.ActorID),
		nullString(e.ActorRole),
		nullString(e.IPAddress),
		nullString(e.Amount),
		nullString(e.ReferenceID),
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
