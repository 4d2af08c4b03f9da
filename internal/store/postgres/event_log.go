package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/agentd/internal/domain"
)

type EventLogRepo struct {
	pool *pgxpool.Pool
}

func NewEventLogRepo(pool *pgxpool.Pool) *EventLogRepo {
	return &EventLogRepo{pool: pool}
}

func (r *EventLogRepo) Append(ctx context.Context, entry *domain.EventLogEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO event_log_entries (id, session_id, source, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.SessionID, entry.Source, entry.Payload, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("eventLogRepo.Append: %w", err)
	}

	return nil
}

func (r *EventLogRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*domain.EventLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, source, payload, created_at
		 FROM event_log_entries WHERE session_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("eventLogRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var entries []*domain.EventLogEntry
	for rows.Next() {
		var e domain.EventLogEntry

		err = rows.Scan(&e.ID, &e.SessionID, &e.Source, &e.Payload, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("eventLogRepo.ListBySession: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("eventLogRepo.ListBySession: rows: %w", err)
	}

	return entries, nil
}

func (r *EventLogRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_log_entries WHERE session_id = $1`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("eventLogRepo.CountBySession: %w", err)
	}

	return count, nil
}
