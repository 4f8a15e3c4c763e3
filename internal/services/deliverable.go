package services

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/buildwave/apiserver/internal/storage"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
	"github.com/google/uuid"
)

// DeliverableRepository defines persistence operations for deliverable
// metadata.
type DeliverableRepository interface {
	Create(ctx context.Context, deliverable types.Deliverable) (types.Deliverable, error)
	Get(ctx context.Context, id string) (types.Deliverable, error)
	ListByProject(ctx context.Context, projectID string) ([]types.Deliverable, error)
	Delete(ctx context.Context, id string) error
}

// DeliverableService stores deliverable files in object storage and
// tracks their metadata alongside the owning project.
type DeliverableService struct {
	repo      DeliverableRepository
	projects  ProjectRepository
	timeline  TimelineRepository
	storage   *storage.Storage
	publisher EventPublisher
}

func NewDeliverableService(
	repo DeliverableRepository,
	projects ProjectRepository,
	timeline TimelineRepository,
	objectStorage *storage.Storage,
	publisher EventPublisher,
) *DeliverableService {
	return &DeliverableService{
		repo:      repo,
		projects:  projects,
		timeline:  timeline,
		storage:   objectStorage,
		publisher: publisher,
	}
}

// Add uploads the file and records its metadata. If the metadata write
// fails after the upload, the stored object is removed again so no
// orphan is left behind.
func (s *DeliverableService) Add(ctx context.Context, projectID string, uploadedBy int, actor, fileName, contentType string, size int64, r io.Reader) (types.Deliverable, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return types.Deliverable{}, err
	}

	id := uuid.New().String()
	key := fmt.Sprintf("projects/%s/%s-%s", project.ID, id, fileName)

	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		return types.Deliverable{}, err
	}

	deliverable, err := s.repo.Create(ctx, types.Deliverable{
		ID:          id,
		ProjectID:   project.ID,
		FileName:    fileName,
		ObjectKey:   key,
		UploadedBy:  uploadedBy,
		Size:        size,
		ContentType: contentType,
	})
	if err != nil {
		if cleanupErr := s.storage.Delete(ctx, key); cleanupErr != nil {
			log.Printf("clean up orphaned object %s: %v", key, cleanupErr)
		}
		return types.Deliverable{}, err
	}

	if _, err := s.timeline.Append(ctx, types.TimelineEvent{
		ProjectID:   project.ID,
		Actor:       actor,
		Kind:        types.EventProgress,
		Description: fmt.Sprintf("Deliverable %q attached", fileName),
	}); err != nil {
		return deliverable, &PartialFailureError{Applied: "deliverable upload", Err: err}
	}

	publishEvent(ctx, s.publisher, ProjectEvent{
		Type:      EventDeliverableAdded,
		ProjectID: project.ID,
		UserID:    project.UserID,
	})
	return deliverable, nil
}

func (s *DeliverableService) ListByProject(ctx context.Context, projectID string) ([]types.Deliverable, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

// Open returns the deliverable metadata and a reader over its contents.
// The deliverable must belong to the given project; a mismatch reads as
// not found so foreign IDs leak nothing. The caller closes the reader.
func (s *DeliverableService) Open(ctx context.Context, projectID, id string) (types.Deliverable, io.ReadCloser, error) {
	deliverable, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Deliverable{}, nil, err
	}
	if deliverable.ProjectID != projectID {
		return types.Deliverable{}, nil, store.ErrNotFound
	}
	reader, err := s.storage.Get(ctx, deliverable.ObjectKey)
	if err != nil {
		return types.Deliverable{}, nil, err
	}
	return deliverable, reader, nil
}

// Remove deletes the metadata row first, then best-effort removes the
// stored object. Like Open, it refuses deliverables of other projects.
func (s *DeliverableService) Remove(ctx context.Context, projectID, id string) error {
	deliverable, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if deliverable.ProjectID != projectID {
		return store.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, deliverable.ObjectKey); err != nil {
		log.Printf("delete deliverable object %s: %v", deliverable.ObjectKey, err)
	}
	return nil
}
