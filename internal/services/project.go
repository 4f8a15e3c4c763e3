package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/buildwave/apiserver/internal/storage"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
)

const defaultProjectTitle = "Untitled"

// ProjectRepository defines persistence operations for projects.
type ProjectRepository interface {
	Get(ctx context.Context, id string) (types.Project, error)
	List(ctx context.Context, filter store.ProjectFilter, offset, limit int) ([]types.Project, int, error)
	Create(ctx context.Context, project types.Project) (types.Project, error)
	UpdateStatus(ctx context.Context, id, status string, progress int) (types.Project, error)
	UpdateAssignee(ctx context.Context, id string, assignee *int) (types.Project, error)
	Delete(ctx context.Context, id string) ([]string, error)
}

// TimelineRepository defines persistence operations for the append-only
// project timeline.
type TimelineRepository interface {
	Append(ctx context.Context, event types.TimelineEvent) (types.TimelineEvent, error)
	ListByProject(ctx context.Context, projectID string) ([]types.TimelineEvent, error)
}

// ProjectService encapsulates the project lifecycle use-cases.
type ProjectService struct {
	repo      ProjectRepository
	timeline  TimelineRepository
	users     UserRepository
	storage   *storage.Storage
	publisher EventPublisher
}

func NewProjectService(
	repo ProjectRepository,
	timeline TimelineRepository,
	users UserRepository,
	objectStorage *storage.Storage,
	publisher EventPublisher,
) *ProjectService {
	return &ProjectService{
		repo:      repo,
		timeline:  timeline,
		users:     users,
		storage:   objectStorage,
		publisher: publisher,
	}
}

// Create writes a new project. Status and progress are forced to their
// initial values regardless of what the caller supplied.
func (s *ProjectService) Create(ctx context.Context, project types.Project) (types.Project, error) {
	project.Status = types.StatusPending
	project.Progress = 0
	if strings.TrimSpace(project.Title) == "" {
		project.Title = defaultProjectTitle
	}
	if project.ContactChannel == "" {
		project.ContactChannel = types.ContactEmail
	}

	created, err := s.repo.Create(ctx, project)
	if err != nil {
		return types.Project{}, err
	}

	publishEvent(ctx, s.publisher, ProjectEvent{
		Type:      EventProjectCreated,
		ProjectID: created.ID,
		UserID:    created.UserID,
		Status:    created.Status,
	})
	return created, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (types.Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, filter store.ProjectFilter, offset, limit int) ([]types.Project, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, offset, limit)
}

func (s *ProjectService) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Project, int, error) {
	return s.List(ctx, store.ProjectFilter{UserID: userID}, offset, limit)
}

// UpdateStatus applies a status/progress update with no transition
// guard; the authority for valid transitions is admin judgment. No
// timeline event is appended here.
func (s *ProjectService) UpdateStatus(ctx context.Context, id, status string, progress int) (types.Project, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, status, progress)
	if err != nil {
		return types.Project{}, err
	}

	publishEvent(ctx, s.publisher, ProjectEvent{
		Type:      EventStatusChanged,
		ProjectID: updated.ID,
		UserID:    updated.UserID,
		Status:    updated.Status,
		Progress:  updated.Progress,
	})
	return updated, nil
}

// UpdateStatusWithNote performs the status update and then appends the
// progress note. If the note append fails after the status already
// committed, the caller gets a PartialFailureError rather than a claim
// of full success.
func (s *ProjectService) UpdateStatusWithNote(ctx context.Context, id, status string, progress int, note string) (types.Project, error) {
	updated, err := s.UpdateStatus(ctx, id, status, progress)
	if err != nil {
		return types.Project{}, err
	}

	_, err = s.timeline.Append(ctx, types.TimelineEvent{
		ProjectID:   id,
		Actor:       types.ActorAdmin,
		Kind:        types.EventStatusChange,
		Description: note,
	})
	if err != nil {
		return updated, &PartialFailureError{Applied: "status update", Err: err}
	}
	return updated, nil
}

func (s *ProjectService) UpdateAssignee(ctx context.Context, id string, assignee *int) (types.Project, error) {
	return s.repo.UpdateAssignee(ctx, id, assignee)
}

// AppendEvent records a timeline entry. The log is append-only; prior
// events are never touched.
func (s *ProjectService) AppendEvent(ctx context.Context, event types.TimelineEvent) (types.TimelineEvent, error) {
	if _, err := s.repo.Get(ctx, event.ProjectID); err != nil {
		return types.TimelineEvent{}, err
	}
	return s.timeline.Append(ctx, event)
}

func (s *ProjectService) Events(ctx context.Context, projectID string) ([]types.TimelineEvent, error) {
	if _, err := s.repo.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.timeline.ListByProject(ctx, projectID)
}

// Track is the public two-factor lookup: project id plus the owner's
// email, compared case-insensitively. The three failure modes are
// distinct so the UI can tell "no such project" from "wrong email".
func (s *ProjectService) Track(ctx context.Context, projectID, email string) (types.Project, error) {
	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return types.Project{}, err
	}

	owner, err := s.users.GetByID(ctx, project.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Project{}, ErrOwnerNotFound
		}
		return types.Project{}, err
	}

	if !strings.EqualFold(strings.TrimSpace(email), owner.Email) {
		return types.Project{}, ErrEmailMismatch
	}
	return project, nil
}

// Delete removes the project together with its timeline events and
// deliverable rows, then best-effort removes the stored objects. A
// storage cleanup failure is logged, not surfaced; the rows are gone.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	keys, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}

	if s.storage != nil {
		for _, key := range keys {
			if err := s.storage.Delete(ctx, key); err != nil {
				log.Printf("delete deliverable object %s: %v", key, err)
			}
		}
	}

	publishEvent(ctx, s.publisher, ProjectEvent{
		Type:      EventProjectDeleted,
		ProjectID: id,
	})
	return nil
}
