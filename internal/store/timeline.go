package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/buildwave/apiserver/types"
)

// TimelineRepository handles persistence for project timeline events.
// The log is append-only; there is no update or single-delete path.
type TimelineRepository struct {
	db *sql.DB
}

func NewTimelineRepository(db *sql.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

func (r *TimelineRepository) Append(ctx context.Context, event types.TimelineEvent) (types.TimelineEvent, error) {
	event.CreatedAt = time.Now()

	const query = `
		INSERT INTO timeline_events (project_id, actor, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		event.ProjectID,
		event.Actor,
		event.Kind,
		event.Description,
		event.CreatedAt,
	).Scan(&event.ID); err != nil {
		return types.TimelineEvent{}, err
	}
	return event, nil
}

// ListByProject returns the project's events in insertion order.
func (r *TimelineRepository) ListByProject(ctx context.Context, projectID string) ([]types.TimelineEvent, error) {
	const query = `
		SELECT id, project_id, actor, kind, description, created_at
		FROM timeline_events
		WHERE project_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.TimelineEvent
	for rows.Next() {
		var event types.TimelineEvent
		if err := rows.Scan(
			&event.ID,
			&event.ProjectID,
			&event.Actor,
			&event.Kind,
			&event.Description,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
