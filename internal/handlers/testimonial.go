package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/buildwave/apiserver/internal/services"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/buildwave/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// TestimonialHandler provides HTTP handlers for testimonial submission
// and moderation.
type TestimonialHandler struct {
	testimonialService *services.TestimonialService
}

func NewTestimonialHandler(testimonialService *services.TestimonialService) *TestimonialHandler {
	return &TestimonialHandler{testimonialService: testimonialService}
}

// TestimonialRouter registers the public testimonial routes. Submission
// links the current account when a valid token is present.
func TestimonialRouter(r chi.Router, testimonialService *services.TestimonialService, optionalAuth func(http.Handler) http.Handler) {
	handler := NewTestimonialHandler(testimonialService)

	r.Get("/", handler.ListApproved)
	r.With(optionalAuth).Post("/", handler.Submit)
}

// AdminTestimonialRouter registers the moderation routes.
func AdminTestimonialRouter(r chi.Router, testimonialService *services.TestimonialService) {
	handler := NewTestimonialHandler(testimonialService)

	r.Get("/", handler.ListAll)
	r.Post("/{testimonialID}/approve", handler.Approve)
	r.Post("/{testimonialID}/reject", handler.Reject)
	r.Put("/{testimonialID}/featured", handler.SetFeatured)
}

// TestimonialRequest is the typed submission payload.
type TestimonialRequest struct {
	AuthorName   string `json:"author_name"`
	AuthorSchool string `json:"author_school"`
	AuthorCourse string `json:"author_course"`
	Rating       int    `json:"rating"`
	Review       string `json:"review"`
}

// FeatureRequest toggles the landing-page feature flag.
type FeatureRequest struct {
	Featured bool `json:"featured"`
}

// TestimonialListResponse is the paginated list response payload.
type TestimonialListResponse struct {
	Items []types.Testimonial `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

func (h *TestimonialHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req TestimonialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.AuthorName = strings.TrimSpace(req.AuthorName)
	req.Review = strings.TrimSpace(req.Review)
	if req.AuthorName == "" || req.Review == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	testimonial := types.Testimonial{
		AuthorName:   req.AuthorName,
		AuthorSchool: strings.TrimSpace(req.AuthorSchool),
		AuthorCourse: strings.TrimSpace(req.AuthorCourse),
		Rating:       req.Rating,
		Review:       req.Review,
	}
	if userID, err := userIDFromContext(r.Context()); err == nil {
		testimonial.UserID = &userID
	}

	created, err := h.testimonialService.Submit(r.Context(), testimonial)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRating) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to submit testimonial")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TestimonialHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.testimonialService.ListApproved)
}

func (h *TestimonialHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.testimonialService.ListAll)
}

func (h *TestimonialHandler) list(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, offset, limit int) ([]types.Testimonial, int, error),
) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := query(r.Context(), offset, limit)
	if err != nil {
		if isTimeout(err) {
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list testimonials")
		return
	}

	writeJSON(w, http.StatusOK, TestimonialListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *TestimonialHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.testimonialService.Approve)
}

func (h *TestimonialHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.testimonialService.Reject)
}

func (h *TestimonialHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	var req FeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	testimonial, err := h.testimonialService.SetFeatured(r.Context(), chi.URLParam(r, "testimonialID"), req.Featured)
	if err != nil {
		if errors.Is(err, services.ErrFeatureRequiresApproval) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeTestimonialError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, testimonial)
}

func (h *TestimonialHandler) moderate(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, id string) (types.Testimonial, error),
) {
	testimonial, err := action(r.Context(), chi.URLParam(r, "testimonialID"))
	if err != nil {
		h.writeTestimonialError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, testimonial)
}

func (h *TestimonialHandler) writeTestimonialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "testimonial not found")
	case isTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}
