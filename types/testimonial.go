package types

import "time"

// Testimonial moderation statuses.
const (
	TestimonialPending  = "pending"
	TestimonialApproved = "approved"
	TestimonialRejected = "rejected"
)

// Testimonial represents a customer review shown on the marketing site
// after admin moderation.
type Testimonial struct {
	// ID is the unique identifier of the testimonial.
	ID string `json:"id" db:"id"`

	// AuthorName is the display name of the reviewer.
	AuthorName string `json:"author_name" db:"author_name"`

	// AuthorSchool is the reviewer's institution.
	AuthorSchool string `json:"author_school" db:"author_school"`

	// AuthorCourse is the reviewer's course of study.
	AuthorCourse string `json:"author_course" db:"author_course"`

	// UserID links the testimonial to an account when the reviewer was
	// signed in at submission time.
	UserID *int `json:"user_id,omitempty" db:"user_id"`

	// Rating is the star rating, 1 through 5.
	Rating int `json:"rating" db:"rating"`

	// Review is the free-text review body.
	Review string `json:"review" db:"review"`

	// Status is the moderation status
	// ("pending", "approved", or "rejected").
	Status string `json:"status" db:"status"`

	// IsFeatured marks the testimonial for the landing-page carousel.
	IsFeatured bool `json:"is_featured" db:"is_featured"`

	// CreatedAt is the timestamp when the testimonial was submitted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
