package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/buildwave/apiserver/internal/storage"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
)

type fakeProjectRepo struct {
	seq        int
	projects   map[string]types.Project
	objectKeys []string
	deleted    []string
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: map[string]types.Project{}}
}

func (r *fakeProjectRepo) Get(_ context.Context, id string) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	return project, nil
}

func (r *fakeProjectRepo) List(_ context.Context, filter store.ProjectFilter, _, _ int) ([]types.Project, int, error) {
	var items []types.Project
	for _, project := range r.projects {
		if filter.UserID != 0 && project.UserID != filter.UserID {
			continue
		}
		items = append(items, project)
	}
	return items, len(items), nil
}

func (r *fakeProjectRepo) Create(_ context.Context, project types.Project) (types.Project, error) {
	r.seq++
	project.ID = fmt.Sprintf("BW-2026-%04d", r.seq)
	r.projects[project.ID] = project
	return project, nil
}

func (r *fakeProjectRepo) UpdateStatus(_ context.Context, id, status string, progress int) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	project.Status = status
	project.Progress = progress
	r.projects[id] = project
	return project, nil
}

func (r *fakeProjectRepo) UpdateAssignee(_ context.Context, id string, assignee *int) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	project.AssignedTo = assignee
	r.projects[id] = project
	return project, nil
}

func (r *fakeProjectRepo) Delete(_ context.Context, id string) ([]string, error) {
	if _, ok := r.projects[id]; !ok {
		return nil, store.ErrNotFound
	}
	delete(r.projects, id)
	r.deleted = append(r.deleted, id)
	return r.objectKeys, nil
}

type fakeTimelineRepo struct {
	events     []types.TimelineEvent
	appendErr  error
	nextID     int64
	listingErr error
}

func (r *fakeTimelineRepo) Append(_ context.Context, event types.TimelineEvent) (types.TimelineEvent, error) {
	if r.appendErr != nil {
		return types.TimelineEvent{}, r.appendErr
	}
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, event)
	return event, nil
}

func (r *fakeTimelineRepo) ListByProject(_ context.Context, projectID string) ([]types.TimelineEvent, error) {
	if r.listingErr != nil {
		return nil, r.listingErr
	}
	var events []types.TimelineEvent
	for _, event := range r.events {
		if event.ProjectID == projectID {
			events = append(events, event)
		}
	}
	return events, nil
}

type fakeUserRepo struct {
	users map[int]types.User
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	user.ID = len(r.users) + 1
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	existing.Name = user.Name
	r.users[user.ID] = existing
	return existing, nil
}

func (r *fakeUserRepo) List(_ context.Context, _, _ int) ([]types.User, int, error) {
	var users []types.User
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, len(users), nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id int) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) TouchLastActive(_ context.Context, _ int) error {
	return nil
}

type fakeObjectBackend struct {
	objects map[string][]byte
	deleted []string
	putErr  error
	delErr  error
}

func newFakeObjectBackend() *fakeObjectBackend {
	return &fakeObjectBackend{objects: map[string][]byte{}}
}

func (b *fakeObjectBackend) EnsureBucket(_ context.Context) error { return nil }

func (b *fakeObjectBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *fakeObjectBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeObjectBackend) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeObjectBackend) Bucket() string { return "test" }

func newProjectService(repo *fakeProjectRepo, timeline *fakeTimelineRepo, users *fakeUserRepo, backend *fakeObjectBackend) *ProjectService {
	var objectStorage *storage.Storage
	if backend != nil {
		objectStorage = storage.NewStorage(backend)
	}
	return NewProjectService(repo, timeline, users, objectStorage, nil)
}

func TestCreateForcesInitialState(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newProjectService(repo, &fakeTimelineRepo{}, &fakeUserRepo{}, nil)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Final year project",
		Status:      types.StatusCompleted,
		Progress:    80,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if created.Status != types.StatusPending {
		t.Fatalf("expected status %q, got %q", types.StatusPending, created.Status)
	}
	if created.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", created.Progress)
	}
	if created.Title != "Untitled" {
		t.Fatalf("expected default title, got %q", created.Title)
	}
	if created.ContactChannel != types.ContactEmail {
		t.Fatalf("expected default contact channel, got %q", created.ContactChannel)
	}

	second, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Another project",
	})
	if err != nil {
		t.Fatalf("create second project: %v", err)
	}
	if second.ID == created.ID {
		t.Fatalf("expected distinct project IDs, both got %q", created.ID)
	}
}

func TestTrackProject(t *testing.T) {
	repo := newFakeProjectRepo()
	users := &fakeUserRepo{users: map[int]types.User{
		1: {ID: 1, Email: "ada@example.com"},
	}}
	svc := newProjectService(repo, &fakeTimelineRepo{}, users, nil)

	owned, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Statistics",
		Level:       types.LevelUndergraduate,
		Description: "Survey analysis",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	orphan, err := svc.Create(context.Background(), types.Project{
		UserID:      99,
		Discipline:  "Statistics",
		Level:       types.LevelUndergraduate,
		Description: "Owner was deleted",
	})
	if err != nil {
		t.Fatalf("create orphan project: %v", err)
	}

	if _, err := svc.Track(context.Background(), "BW-2026-9999", "ada@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}
	if _, err := svc.Track(context.Background(), orphan.ID, "ada@example.com"); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if _, err := svc.Track(context.Background(), owned.ID, "wrong@example.com"); !errors.Is(err, ErrEmailMismatch) {
		t.Fatalf("expected ErrEmailMismatch, got %v", err)
	}

	project, err := svc.Track(context.Background(), owned.ID, "  ADA@Example.COM ")
	if err != nil {
		t.Fatalf("expected case-insensitive email match, got %v", err)
	}
	if project.ID != owned.ID {
		t.Fatalf("expected project %q, got %q", owned.ID, project.ID)
	}
}

func TestUpdateStatusWithNotePartialFailure(t *testing.T) {
	repo := newFakeProjectRepo()
	timeline := &fakeTimelineRepo{appendErr: errors.New("timeline unavailable")}
	svc := newProjectService(repo, timeline, &fakeUserRepo{}, nil)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Compiler project",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	updated, err := svc.UpdateStatusWithNote(context.Background(), created.ID, types.StatusInProgress, 25, "Kickoff complete")
	if err == nil {
		t.Fatalf("expected partial failure error")
	}

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Applied != "status update" {
		t.Fatalf("unexpected applied step: %q", partial.Applied)
	}
	if updated.Status != types.StatusInProgress {
		t.Fatalf("expected status to have committed, got %q", updated.Status)
	}
	if stored := repo.projects[created.ID]; stored.Status != types.StatusInProgress {
		t.Fatalf("expected stored status %q, got %q", types.StatusInProgress, stored.Status)
	}
}

func TestUpdateStatusHasNoTransitionGuard(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newProjectService(repo, &fakeTimelineRepo{}, &fakeUserRepo{}, nil)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Thesis",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	// pending straight to completed, then back again
	updated, err := svc.UpdateStatus(context.Background(), created.ID, types.StatusCompleted, 100)
	if err != nil {
		t.Fatalf("update to completed: %v", err)
	}
	if updated.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}

	updated, err = svc.UpdateStatus(context.Background(), created.ID, types.StatusPending, 0)
	if err != nil {
		t.Fatalf("update back to pending: %v", err)
	}
	if updated.Status != types.StatusPending {
		t.Fatalf("expected pending, got %q", updated.Status)
	}
}

func TestDeleteRemovesStoredObjects(t *testing.T) {
	repo := newFakeProjectRepo()
	backend := newFakeObjectBackend()
	backend.objects["projects/BW-2026-0001/a-report.pdf"] = []byte("data")
	backend.objects["projects/BW-2026-0001/b-slides.pdf"] = []byte("data")
	repo.objectKeys = []string{
		"projects/BW-2026-0001/a-report.pdf",
		"projects/BW-2026-0001/b-slides.pdf",
	}
	svc := newProjectService(repo, &fakeTimelineRepo{}, &fakeUserRepo{}, backend)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Capstone",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if len(backend.deleted) != 2 {
		t.Fatalf("expected 2 object deletes, got %d", len(backend.deleted))
	}
	if _, err := svc.Get(context.Background(), created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected project gone, got %v", err)
	}
}

func TestDeleteSucceedsWhenObjectCleanupFails(t *testing.T) {
	repo := newFakeProjectRepo()
	backend := newFakeObjectBackend()
	backend.delErr = errors.New("storage unavailable")
	repo.objectKeys = []string{"projects/BW-2026-0001/a-report.pdf"}
	svc := newProjectService(repo, &fakeTimelineRepo{}, &fakeUserRepo{}, backend)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Capstone",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("expected delete to succeed despite cleanup failure, got %v", err)
	}
}

func TestTimelineAppendPreservesPriorEvents(t *testing.T) {
	repo := newFakeProjectRepo()
	timeline := &fakeTimelineRepo{}
	svc := newProjectService(repo, timeline, &fakeUserRepo{}, nil)

	created, err := svc.Create(context.Background(), types.Project{
		UserID:      1,
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Thesis",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	descriptions := []string{"Kickoff call held", "Literature review done", "First chapter drafted"}
	for _, description := range descriptions {
		if _, err := svc.AppendEvent(context.Background(), types.TimelineEvent{
			ProjectID:   created.ID,
			Actor:       types.ActorAdmin,
			Kind:        types.EventProgress,
			Description: description,
		}); err != nil {
			t.Fatalf("append %q: %v", description, err)
		}
	}

	events, err := svc.Events(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != len(descriptions) {
		t.Fatalf("expected %d events, got %d", len(descriptions), len(events))
	}
	for i, description := range descriptions {
		if events[i].Description != description {
			t.Fatalf("event %d: expected %q, got %q", i, description, events[i].Description)
		}
	}

	// a later append leaves the earlier entries untouched
	if _, err := svc.AppendEvent(context.Background(), types.TimelineEvent{
		ProjectID:   created.ID,
		Actor:       types.ActorAdmin,
		Kind:        types.EventNote,
		Description: "Scope adjusted",
	}); err != nil {
		t.Fatalf("append note: %v", err)
	}

	events, err = svc.Events(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list events again: %v", err)
	}
	if len(events) != len(descriptions)+1 {
		t.Fatalf("expected %d events, got %d", len(descriptions)+1, len(events))
	}
	for i, description := range descriptions {
		if events[i].Description != description {
			t.Fatalf("event %d changed after later append: %q", i, events[i].Description)
		}
	}
	if last := events[len(events)-1]; last.Kind != types.EventNote || last.Description != "Scope adjusted" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestEventsRequireExistingProject(t *testing.T) {
	svc := newProjectService(newFakeProjectRepo(), &fakeTimelineRepo{}, &fakeUserRepo{}, nil)

	if _, err := svc.Events(context.Background(), "BW-2026-9999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.AppendEvent(context.Background(), types.TimelineEvent{
		ProjectID:   "BW-2026-9999",
		Actor:       types.ActorAdmin,
		Kind:        types.EventNote,
		Description: "orphan note",
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
