package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/buildwave/apiserver/internal/services"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory  = 32 << 20
	maxDeliverableBytes = 128 << 20
	formFieldFile       = "file"
)

// ProjectHandler provides HTTP handlers for the project lifecycle.
type ProjectHandler struct {
	projectService     *services.ProjectService
	deliverableService *services.DeliverableService
	userService        *services.UserService
}

// NewProjectHandler constructs a handler with the provided services.
func NewProjectHandler(
	projectService *services.ProjectService,
	deliverableService *services.DeliverableService,
	userService *services.UserService,
) *ProjectHandler {
	return &ProjectHandler{
		projectService:     projectService,
		deliverableService: deliverableService,
		userService:        userService,
	}
}

// ProjectRouter registers project routes on the given router.
func ProjectRouter(
	r chi.Router,
	projectService *services.ProjectService,
	deliverableService *services.DeliverableService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProjectHandler(projectService, deliverableService, userService)

	r.Post("/track", handler.TrackProject)
	r.With(authMiddleware, handler.requireAdmin).Get("/", handler.ListProjects)
	r.With(authMiddleware).Post("/", handler.CreateProject)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.GetProject)
		r.With(handler.requireAdmin).Delete("/", handler.DeleteProject)
		r.With(handler.requireAdmin).Patch("/status", handler.UpdateStatus)
		r.With(handler.requireAdmin).Post("/status-with-note", handler.UpdateStatusWithNote)
		r.With(handler.requireAdmin).Put("/assignee", handler.UpdateAssignee)
		r.Get("/events", handler.ListEvents)
		r.With(handler.requireAdmin).Post("/events", handler.AppendNote)
		r.Route("/deliverables", func(r chi.Router) {
			r.Get("/", handler.ListDeliverables)
			r.Post("/", handler.UploadDeliverable)
			r.Get("/{deliverableID}", handler.DownloadDeliverable)
			r.With(handler.requireAdmin).Delete("/{deliverableID}", handler.DeleteDeliverable)
		})
	})
}

// UserProjectsRouter registers the per-user project listing.
func UserProjectsRouter(
	r chi.Router,
	projectService *services.ProjectService,
	deliverableService *services.DeliverableService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProjectHandler(projectService, deliverableService, userService)
	r.With(authMiddleware).Get("/{userID}/projects", handler.ListUserProjects)
}

// ProjectRequest is the typed payload collected by the request form.
type ProjectRequest struct {
	Title          string `json:"title"`
	Discipline     string `json:"discipline"`
	Level          string `json:"level"`
	Description    string `json:"description"`
	Deadline       string `json:"deadline"`
	Budget         string `json:"budget"`
	ContactChannel string `json:"contact_channel"`
	NeedsTopic     bool   `json:"needs_topic"`
	HasProject     bool   `json:"has_project"`
}

// StatusUpdateRequest is the admin status/progress editor payload.
type StatusUpdateRequest struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Note     string `json:"note,omitempty"`
}

// NoteRequest is the admin progress-note payload.
type NoteRequest struct {
	Description string `json:"description"`
	Kind        string `json:"kind,omitempty"`
}

// TrackRequest is the public track-project lookup payload.
type TrackRequest struct {
	ProjectID string `json:"project_id"`
	Email     string `json:"email"`
}

// AssigneeRequest reassigns or clears the project assignee.
type AssigneeRequest struct {
	AssignedTo *int `json:"assigned_to"`
}

// ProjectListResponse is the paginated list response payload.
type ProjectListResponse struct {
	Items []types.Project `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Discipline = strings.TrimSpace(req.Discipline)
	req.Description = strings.TrimSpace(req.Description)
	if req.Discipline == "" {
		writeError(w, http.StatusBadRequest, "discipline is required")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if !types.ValidLevel(req.Level) {
		writeError(w, http.StatusBadRequest, "invalid academic level")
		return
	}
	if req.ContactChannel != "" && req.ContactChannel != types.ContactEmail && req.ContactChannel != types.ContactWhatsApp {
		writeError(w, http.StatusBadRequest, "invalid contact channel")
		return
	}

	var deadline *time.Time
	if raw := strings.TrimSpace(req.Deadline); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deadline")
			return
		}
		deadline = &parsed
	}

	project, err := h.projectService.Create(r.Context(), types.Project{
		UserID:         userID,
		Title:          strings.TrimSpace(req.Title),
		Discipline:     req.Discipline,
		Level:          req.Level,
		Description:    req.Description,
		Deadline:       deadline,
		Budget:         strings.TrimSpace(req.Budget),
		ContactChannel: req.ContactChannel,
		NeedsTopic:     req.NeedsTopic,
		HasProject:     req.HasProject,
	})
	if err != nil {
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.ProjectFilter{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Level:  strings.TrimSpace(r.URL.Query().Get("level")),
	}
	if filter.Status != "" && !types.ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if filter.Level != "" && !types.ValidLevel(filter.Level) {
		writeError(w, http.StatusBadRequest, "invalid level filter")
		return
	}

	items, total, err := h.projectService.List(r.Context(), filter, offset, limit)
	if err != nil {
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, ProjectListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ProjectHandler) ListUserProjects(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || targetID < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if !h.currentUserIsOrAdmin(w, r, targetID) {
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.projectService.ListByUser(r.Context(), targetID, offset, limit)
	if err != nil {
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, ProjectListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProjectForViewer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !types.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be between 0 and 100")
		return
	}

	project, err := h.projectService.UpdateStatus(r.Context(), id, req.Status, req.Progress)
	if err != nil {
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) UpdateStatusWithNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !types.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be between 0 and 100")
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}

	project, err := h.projectService.UpdateStatusWithNote(r.Context(), id, req.Status, req.Progress, req.Note)
	if err != nil {
		var partial *services.PartialFailureError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "status updated but the progress note was not recorded",
				Partial: true,
			})
			return
		}
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) UpdateAssignee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req AssigneeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	project, err := h.projectService.UpdateAssignee(r.Context(), id, req.AssignedTo)
	if err != nil {
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) AppendNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = types.EventNote
	}
	switch kind {
	case types.EventProgress, types.EventNote, types.EventStatusChange:
	default:
		writeError(w, http.StatusBadRequest, "invalid event kind")
		return
	}

	event, err := h.projectService.AppendEvent(r.Context(), types.TimelineEvent{
		ProjectID:   id,
		Actor:       types.ActorAdmin,
		Kind:        kind,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func (h *ProjectHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadProjectForViewer(w, r); !ok {
		return
	}

	events, err := h.projectService.Events(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// TrackProject is the public two-factor lookup. Each failure mode gets
// a distinct message so the form can render "not found" versus "wrong
// email" versus "try again".
func (h *ProjectHandler) TrackProject(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Email = strings.TrimSpace(req.Email)
	if req.ProjectID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "project id and email are required")
		return
	}

	project, err := h.projectService.Track(r.Context(), req.ProjectID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, services.ErrOwnerNotFound):
			writeError(w, http.StatusNotFound, "project owner could not be resolved")
		case errors.Is(err, services.ErrEmailMismatch):
			writeError(w, http.StatusBadRequest, "email does not match our records for this project")
		case isTimeout(err):
			writeError(w, http.StatusGatewayTimeout, "request timed out")
		default:
			writeError(w, http.StatusInternalServerError, "failed to look up project")
		}
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projectService.Delete(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		h.writeProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) UploadDeliverable(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	project, ok := h.loadProjectForViewer(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	actor := types.ActorStudent
	if strings.EqualFold(user.Role, types.RoleAdmin) {
		actor = types.ActorAdmin
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, err := parseDeliverableFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deliverable, err := h.deliverableService.Add(
		r.Context(), project.ID, userID, actor,
		file.Filename, file.ContentType, int64(len(file.Data)),
		bytes.NewReader(file.Data),
	)
	if err != nil {
		var partial *services.PartialFailureError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "file stored but the timeline entry was not recorded",
				Partial: true,
			})
			return
		}
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, deliverable)
}

func (h *ProjectHandler) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProjectForViewer(w, r)
	if !ok {
		return
	}

	deliverables, err := h.deliverableService.ListByProject(r.Context(), project.ID)
	if err != nil {
		h.writeProjectError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deliverables)
}

func (h *ProjectHandler) DownloadDeliverable(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProjectForViewer(w, r)
	if !ok {
		return
	}

	deliverable, reader, err := h.deliverableService.Open(r.Context(), project.ID, chi.URLParam(r, "deliverableID"))
	if err != nil {
		h.writeProjectError(w, err)
		return
	}
	defer reader.Close()

	if deliverable.ContentType != "" {
		w.Header().Set("Content-Type", deliverable.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", deliverable.FileName))
	_, _ = io.Copy(w, reader)
}

func (h *ProjectHandler) DeleteDeliverable(w http.ResponseWriter, r *http.Request) {
	if err := h.deliverableService.Remove(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "deliverableID")); err != nil {
		h.writeProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeliverableFile is an uploaded deliverable read into memory.
type DeliverableFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

func parseDeliverableFile(form *multipart.Form) (DeliverableFile, error) {
	if form == nil {
		return DeliverableFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldFile]
	if len(files) == 0 {
		return DeliverableFile{}, errors.New("file is required")
	}
	if len(files) > 1 {
		return DeliverableFile{}, errors.New("only one file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return DeliverableFile{}, fmt.Errorf("failed to read file: %w", err)
	}

	data, err := readFileLimited(file, maxDeliverableBytes)
	_ = file.Close()
	if err != nil {
		return DeliverableFile{}, err
	}

	return DeliverableFile{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

// loadProjectForViewer fetches the project and enforces that the caller
// owns it or is an admin. On failure the response is already written.
func (h *ProjectHandler) loadProjectForViewer(w http.ResponseWriter, r *http.Request) (types.Project, bool) {
	project, err := h.projectService.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeProjectError(w, err)
		return types.Project{}, false
	}

	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Project{}, false
	}
	if project.UserID == userID {
		return project, true
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil || !strings.EqualFold(user.Role, types.RoleAdmin) {
		writeError(w, http.StatusForbidden, "access denied")
		return types.Project{}, false
	}
	return project, true
}

func (h *ProjectHandler) currentUserIsOrAdmin(w http.ResponseWriter, r *http.Request, targetID int) bool {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if userID == targetID {
		return true
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil || !strings.EqualFold(user.Role, types.RoleAdmin) {
		writeError(w, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func (h *ProjectHandler) writeProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "project not found")
	case isTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

func (h *ProjectHandler) requireAdmin(next http.Handler) http.Handler {
	return RequireAdmin(h.userService)(next)
}
