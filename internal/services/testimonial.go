package services

import (
	"context"
	"errors"

	"github.com/buildwave/apiserver/types"
	"github.com/google/uuid"
)

// ErrInvalidRating is returned when a submitted rating is outside 1-5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// TestimonialRepository defines persistence operations for testimonials.
type TestimonialRepository interface {
	Get(ctx context.Context, id string) (types.Testimonial, error)
	Create(ctx context.Context, testimonial types.Testimonial) (types.Testimonial, error)
	List(ctx context.Context, status string, offset, limit int) ([]types.Testimonial, int, error)
	UpdateStatus(ctx context.Context, id, status string) (types.Testimonial, error)
	SetFeatured(ctx context.Context, id string, featured bool) (types.Testimonial, error)
}

// TestimonialService encapsulates testimonial submission and moderation.
type TestimonialService struct {
	repo TestimonialRepository

	// featureRequiresApproval gates SetFeatured(true) to approved
	// testimonials. Configurable: off leaves featuring entirely to
	// admin discretion.
	featureRequiresApproval bool
}

func NewTestimonialService(repo TestimonialRepository, featureRequiresApproval bool) *TestimonialService {
	return &TestimonialService{
		repo:                    repo,
		featureRequiresApproval: featureRequiresApproval,
	}
}

// Submit records a new testimonial. Moderation status is forced to
// pending and the featured flag to false regardless of caller input.
func (s *TestimonialService) Submit(ctx context.Context, testimonial types.Testimonial) (types.Testimonial, error) {
	if testimonial.Rating < 1 || testimonial.Rating > 5 {
		return types.Testimonial{}, ErrInvalidRating
	}
	testimonial.ID = uuid.New().String()
	testimonial.Status = types.TestimonialPending
	testimonial.IsFeatured = false
	return s.repo.Create(ctx, testimonial)
}

func (s *TestimonialService) Get(ctx context.Context, id string) (types.Testimonial, error) {
	return s.repo.Get(ctx, id)
}

// ListApproved returns the public carousel content.
func (s *TestimonialService) ListApproved(ctx context.Context, offset, limit int) ([]types.Testimonial, int, error) {
	return s.list(ctx, types.TestimonialApproved, offset, limit)
}

// ListAll returns every testimonial for the moderation queue.
func (s *TestimonialService) ListAll(ctx context.Context, offset, limit int) ([]types.Testimonial, int, error) {
	return s.list(ctx, "", offset, limit)
}

func (s *TestimonialService) list(ctx context.Context, status string, offset, limit int) ([]types.Testimonial, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, status, offset, limit)
}

// Approve marks the testimonial approved. The featured flag is left
// untouched; approval and featuring are independent actions.
func (s *TestimonialService) Approve(ctx context.Context, id string) (types.Testimonial, error) {
	return s.repo.UpdateStatus(ctx, id, types.TestimonialApproved)
}

// Reject marks the testimonial rejected.
func (s *TestimonialService) Reject(ctx context.Context, id string) (types.Testimonial, error) {
	return s.repo.UpdateStatus(ctx, id, types.TestimonialRejected)
}

// SetFeatured toggles the landing-page feature flag. Under the approval
// policy, featuring a non-approved testimonial is refused.
func (s *TestimonialService) SetFeatured(ctx context.Context, id string, featured bool) (types.Testimonial, error) {
	if featured && s.featureRequiresApproval {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return types.Testimonial{}, err
		}
		if current.Status != types.TestimonialApproved {
			return types.Testimonial{}, ErrFeatureRequiresApproval
		}
	}
	return s.repo.SetFeatured(ctx, id, featured)
}
