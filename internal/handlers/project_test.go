package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/buildwave/apiserver/internal/services"
	"github.com/buildwave/apiserver/internal/storage"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
	"github.com/go-chi/chi/v5"
)

type memProjectRepo struct {
	seq      int
	projects map[string]types.Project
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{projects: map[string]types.Project{}}
}

func (r *memProjectRepo) Get(_ context.Context, id string) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	return project, nil
}

func (r *memProjectRepo) List(_ context.Context, filter store.ProjectFilter, _, _ int) ([]types.Project, int, error) {
	var items []types.Project
	for _, project := range r.projects {
		if filter.UserID != 0 && project.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		items = append(items, project)
	}
	return items, len(items), nil
}

func (r *memProjectRepo) Create(_ context.Context, project types.Project) (types.Project, error) {
	r.seq++
	project.ID = fmt.Sprintf("BW-2026-%04d", r.seq)
	r.projects[project.ID] = project
	return project, nil
}

func (r *memProjectRepo) UpdateStatus(_ context.Context, id, status string, progress int) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	project.Status = status
	project.Progress = progress
	r.projects[id] = project
	return project, nil
}

func (r *memProjectRepo) UpdateAssignee(_ context.Context, id string, assignee *int) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	project.AssignedTo = assignee
	r.projects[id] = project
	return project, nil
}

func (r *memProjectRepo) Delete(_ context.Context, id string) ([]string, error) {
	if _, ok := r.projects[id]; !ok {
		return nil, store.ErrNotFound
	}
	delete(r.projects, id)
	return nil, nil
}

type memTimelineRepo struct {
	nextID    int64
	events    []types.TimelineEvent
	appendErr error
}

func (r *memTimelineRepo) Append(_ context.Context, event types.TimelineEvent) (types.TimelineEvent, error) {
	if r.appendErr != nil {
		return types.TimelineEvent{}, r.appendErr
	}
	r.nextID++
	event.ID = r.nextID
	r.events = append(r.events, event)
	return event, nil
}

func (r *memTimelineRepo) ListByProject(_ context.Context, projectID string) ([]types.TimelineEvent, error) {
	var events []types.TimelineEvent
	for _, event := range r.events {
		if event.ProjectID == projectID {
			events = append(events, event)
		}
	}
	return events, nil
}

type memDeliverableRepo struct {
	deliverables map[string]types.Deliverable
}

func newMemDeliverableRepo() *memDeliverableRepo {
	return &memDeliverableRepo{deliverables: map[string]types.Deliverable{}}
}

func (r *memDeliverableRepo) Create(_ context.Context, deliverable types.Deliverable) (types.Deliverable, error) {
	r.deliverables[deliverable.ID] = deliverable
	return deliverable, nil
}

func (r *memDeliverableRepo) Get(_ context.Context, id string) (types.Deliverable, error) {
	deliverable, ok := r.deliverables[id]
	if !ok {
		return types.Deliverable{}, store.ErrNotFound
	}
	return deliverable, nil
}

func (r *memDeliverableRepo) ListByProject(_ context.Context, projectID string) ([]types.Deliverable, error) {
	var items []types.Deliverable
	for _, deliverable := range r.deliverables {
		if deliverable.ProjectID == projectID {
			items = append(items, deliverable)
		}
	}
	return items, nil
}

func (r *memDeliverableRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.deliverables[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.deliverables, id)
	return nil
}

type memObjectBackend struct {
	objects map[string][]byte
}

func newMemObjectBackend() *memObjectBackend {
	return &memObjectBackend{objects: map[string][]byte{}}
}

func (b *memObjectBackend) EnsureBucket(_ context.Context) error { return nil }

func (b *memObjectBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memObjectBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memObjectBackend) Delete(_ context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

func (b *memObjectBackend) Bucket() string { return "test" }

// portalFixture wires the project routes against in-memory repositories
// with one admin and two students pre-seeded.
type portalFixture struct {
	router    *chi.Mux
	users     *memUserRepo
	projects  *memProjectRepo
	timeline  *memTimelineRepo
	backend   *memObjectBackend
	adminTok  string
	aliceTok  string
	bobTok    string
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()

	users := newMemUserRepo()
	users.nextID = 3
	users.users[1] = types.User{ID: 1, Email: "admin@buildwave.example", Name: "Admin", Role: types.RoleAdmin}
	users.users[2] = types.User{ID: 2, Email: "alice@example.com", Name: "Alice", Role: types.RoleStudent}
	users.users[3] = types.User{ID: 3, Email: "bob@example.com", Name: "Bob", Role: types.RoleStudent}

	projects := newMemProjectRepo()
	timeline := &memTimelineRepo{}
	backend := newMemObjectBackend()

	userService := services.NewUserService(users)
	projectService := services.NewProjectService(projects, timeline, users, storage.NewStorage(backend), nil)
	deliverableService := services.NewDeliverableService(newMemDeliverableRepo(), projects, timeline, storage.NewStorage(backend), nil)

	authMiddleware := RequireAuth(testSecret)
	router := chi.NewRouter()
	router.Route("/projects", func(r chi.Router) {
		ProjectRouter(r, projectService, deliverableService, userService, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		UserProjectsRouter(r, projectService, deliverableService, userService, authMiddleware)
	})

	return &portalFixture{
		router:   router,
		users:    users,
		projects: projects,
		timeline: timeline,
		backend:  backend,
		adminTok: testToken(t, 1),
		aliceTok: testToken(t, 2),
		bobTok:   testToken(t, 3),
	}
}

func testToken(t *testing.T, userID int) string {
	t.Helper()
	token, err := issueToken(userID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *portalFixture) createProject(t *testing.T, token string, req ProjectRequest) types.Project {
	t.Helper()

	rec := postJSON(t, f.router, "/projects", token, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: status %d: %s", rec.Code, rec.Body.String())
	}
	var project types.Project
	if err := json.NewDecoder(rec.Body).Decode(&project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	return project
}

func (f *portalFixture) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateProjectDefaults(t *testing.T) {
	f := newPortalFixture(t)

	rec := postJSON(t, f.router, "/projects", f.aliceTok, ProjectRequest{
		Description: "A project with no discipline",
		Level:       types.LevelUndergraduate,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without discipline, got %d", rec.Code)
	}

	project := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Build a course scheduling engine",
		Deadline:    "2026-11-30",
	})
	if project.Status != types.StatusPending {
		t.Fatalf("expected pending status, got %q", project.Status)
	}
	if project.Progress != 0 {
		t.Fatalf("expected zero progress, got %d", project.Progress)
	}
	if project.Title != "Untitled" {
		t.Fatalf("expected default title, got %q", project.Title)
	}
	if project.UserID != 2 {
		t.Fatalf("expected project owned by caller, got user %d", project.UserID)
	}
}

func TestTrackProjectResponses(t *testing.T) {
	f := newPortalFixture(t)

	owned := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Statistics",
		Level:       types.LevelMasters,
		Description: "Survey analysis",
	})

	orphan := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Statistics",
		Level:       types.LevelMasters,
		Description: "Owner disappears",
	})
	stored := f.projects.projects[orphan.ID]
	stored.UserID = 99
	f.projects.projects[orphan.ID] = stored

	cases := []struct {
		name       string
		payload    TrackRequest
		wantStatus int
	}{
		{"unknown project", TrackRequest{ProjectID: "BW-2026-9999", Email: "alice@example.com"}, http.StatusNotFound},
		{"owner missing", TrackRequest{ProjectID: orphan.ID, Email: "alice@example.com"}, http.StatusNotFound},
		{"wrong email", TrackRequest{ProjectID: owned.ID, Email: "bob@example.com"}, http.StatusBadRequest},
		{"missing fields", TrackRequest{ProjectID: "", Email: ""}, http.StatusBadRequest},
		{"match", TrackRequest{ProjectID: owned.ID, Email: "ALICE@Example.com"}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, f.router, "/projects/track", "", tc.payload)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProjectAccessControl(t *testing.T) {
	f := newPortalFixture(t)

	project := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Private project",
	})

	if rec := f.do(t, http.MethodGet, "/projects/"+project.ID, f.bobTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another student, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/projects/"+project.ID, f.aliceTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/projects/"+project.ID, f.adminTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/projects/"+project.ID, "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	f := newPortalFixture(t)

	project := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Thesis",
	})

	payload := StatusUpdateRequest{Status: types.StatusInProgress, Progress: 10}
	if rec := f.do(t, http.MethodPatch, "/projects/"+project.ID+"/status", f.aliceTok, payload); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPatch, "/projects/"+project.ID+"/status", f.adminTok, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated types.Project
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if updated.Status != types.StatusInProgress || updated.Progress != 10 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

func TestStatusWithNotePartialResponse(t *testing.T) {
	f := newPortalFixture(t)

	project := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Thesis",
	})

	f.timeline.appendErr = errors.New("timeline unavailable")

	rec := f.do(t, http.MethodPost, "/projects/"+project.ID+"/status-with-note", f.adminTok, StatusUpdateRequest{
		Status:   types.StatusReview,
		Progress: 90,
		Note:     "Draft submitted for review",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if !resp.Partial {
		t.Fatalf("expected partial flag in response: %+v", resp)
	}
	if stored := f.projects.projects[project.ID]; stored.Status != types.StatusReview {
		t.Fatalf("expected status to have committed, got %q", stored.Status)
	}
}

func TestUploadAndDownloadDeliverable(t *testing.T) {
	f := newPortalFixture(t)

	project := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Capstone",
	})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("final report")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/projects/"+project.ID+"/deliverables", &body)
	req.Header.Set("Authorization", "Bearer "+f.aliceTok)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var deliverable types.Deliverable
	if err := json.NewDecoder(rec.Body).Decode(&deliverable); err != nil {
		t.Fatalf("decode deliverable: %v", err)
	}
	if deliverable.FileName != "report.pdf" {
		t.Fatalf("unexpected file name: %q", deliverable.FileName)
	}
	if _, ok := f.backend.objects[deliverable.ObjectKey]; !ok {
		t.Fatalf("expected object stored under %q", deliverable.ObjectKey)
	}

	download := f.do(t, http.MethodGet, "/projects/"+project.ID+"/deliverables/"+deliverable.ID, f.aliceTok, nil)
	if download.Code != http.StatusOK {
		t.Fatalf("expected 200 download, got %d: %s", download.Code, download.Body.String())
	}
	if download.Body.String() != "final report" {
		t.Fatalf("unexpected download body: %q", download.Body.String())
	}
}

func (f *portalFixture) uploadFile(t *testing.T, token, projectID, name, content string) types.Deliverable {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/projects/"+projectID+"/deliverables", &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status %d: %s", rec.Code, rec.Body.String())
	}

	var deliverable types.Deliverable
	if err := json.NewDecoder(rec.Body).Decode(&deliverable); err != nil {
		t.Fatalf("decode deliverable: %v", err)
	}
	return deliverable
}

func TestDeliverableAccessScopedToProject(t *testing.T) {
	f := newPortalFixture(t)

	aliceProject := f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "Alice's thesis",
	})
	bobProject := f.createProject(t, f.bobTok, ProjectRequest{
		Discipline:  "Economics",
		Level:       types.LevelUndergraduate,
		Description: "Bob's survey",
	})

	deliverable := f.uploadFile(t, f.aliceTok, aliceProject.ID, "draft.pdf", "alice's confidential draft")

	crossPath := "/projects/" + bobProject.ID + "/deliverables/" + deliverable.ID
	if rec := f.do(t, http.MethodGet, crossPath, f.bobTok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 downloading under another project, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodDelete, crossPath, f.adminTok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting under another project, got %d: %s", rec.Code, rec.Body.String())
	}

	ownPath := "/projects/" + aliceProject.ID + "/deliverables/" + deliverable.ID
	rec := f.do(t, http.MethodGet, ownPath, f.aliceTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 downloading under the owning project, got %d", rec.Code)
	}
	if rec.Body.String() != "alice's confidential draft" {
		t.Fatalf("unexpected download body: %q", rec.Body.String())
	}
}

func TestListProjectsValidatesFilters(t *testing.T) {
	f := newPortalFixture(t)

	if rec := f.do(t, http.MethodGet, "/projects?level=kindergarten", f.adminTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid level filter, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/projects?status=paused", f.adminTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status filter, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/projects?status=pending&level=undergraduate", f.adminTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid filters, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListUserProjects(t *testing.T) {
	f := newPortalFixture(t)

	f.createProject(t, f.aliceTok, ProjectRequest{
		Discipline:  "Computer Science",
		Level:       types.LevelUndergraduate,
		Description: "First",
	})
	f.createProject(t, f.bobTok, ProjectRequest{
		Discipline:  "Economics",
		Level:       types.LevelUndergraduate,
		Description: "Second",
	})

	rec := f.do(t, http.MethodGet, "/users/2/projects", f.aliceTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ProjectListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected exactly Alice's project, got %+v", resp)
	}

	if rec := f.do(t, http.MethodGet, "/users/2/projects", f.bobTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another student, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/users/2/projects", f.adminTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}
