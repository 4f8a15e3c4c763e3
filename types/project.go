package types

import "time"

// Project statuses. There is no transition guard in the data layer:
// cancelled is reachable from any non-terminal state and admins may set
// any status in any order.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ValidStatus reports whether status is one of the known project statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusReview, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Contact channels accepted on project requests.
const (
	ContactEmail    = "email"
	ContactWhatsApp = "whatsapp"
)

// Project represents a requested student project.
// The identifier is human-readable (BW-<year>-<sequence>) and immutable
// once created.
type Project struct {
	// ID is the unique, immutable identifier of the project.
	ID string `json:"id" db:"id"`

	// UserID identifies the owning user. Ownership is fixed at creation;
	// AssignedTo is the separate, reassignable worker field.
	UserID int `json:"user_id" db:"user_id"`

	// Title is the human-readable name of the project.
	// Defaults to "Untitled" when the request leaves it empty.
	Title string `json:"title" db:"title"`

	// Discipline is the free-text subject area of the project.
	Discipline string `json:"discipline" db:"discipline"`

	// Level is the academic level the project targets.
	Level string `json:"level" db:"level"`

	// Description contains the full request text.
	Description string `json:"description" db:"description"`

	// Status is the lifecycle status of the project.
	Status string `json:"status" db:"status"`

	// Progress is the completion percentage (0-100). Regressions are
	// allowed so admins can correct erroneous updates.
	Progress int `json:"progress" db:"progress"`

	// Deadline is the requested completion date, if any.
	Deadline *time.Time `json:"deadline,omitempty" db:"deadline"`

	// Budget is the free-text budget estimate or range.
	Budget string `json:"budget" db:"budget"`

	// ContactChannel is the preferred contact channel
	// ("email" or "whatsapp").
	ContactChannel string `json:"contact_channel" db:"contact_channel"`

	// NeedsTopic indicates the student wants a topic proposed.
	NeedsTopic bool `json:"needs_topic" db:"needs_topic"`

	// HasProject indicates the student already has a project outline.
	// Mutually exclusive with NeedsTopic by UI convention only.
	HasProject bool `json:"has_project" db:"has_project"`

	// AssignedTo identifies the admin-side assignee, if any.
	AssignedTo *int `json:"assigned_to,omitempty" db:"assigned_to"`

	// CreatedAt is the timestamp when the project was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Timeline event kinds.
const (
	EventSubmission   = "submission"
	EventProgress     = "progress"
	EventStatusChange = "status-change"
	EventNote         = "note"
)

// Timeline actors.
const (
	ActorStudent = "student"
	ActorAdmin   = "admin"
)

// TimelineEvent is an append-only log entry attached to a project.
// Events are never edited or removed and are ordered by creation time.
type TimelineEvent struct {
	// ID is the unique identifier of the event.
	ID int64 `json:"id" db:"id"`

	// ProjectID identifies the owning project.
	ProjectID string `json:"project_id" db:"project_id"`

	// Actor is who recorded the event ("student" or "admin").
	Actor string `json:"actor" db:"actor"`

	// Kind classifies the event
	// ("submission", "progress", "status-change", or "note").
	Kind string `json:"kind" db:"kind"`

	// Description is the free-text activity description.
	Description string `json:"description" db:"description"`

	// CreatedAt is the timestamp when the event was recorded.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Deliverable is a file artifact attached to a project by either party.
// The file contents live in object storage under ObjectKey; this record
// holds the metadata.
type Deliverable struct {
	// ID is the unique identifier of the deliverable.
	ID string `json:"id" db:"id"`

	// ProjectID identifies the owning project.
	ProjectID string `json:"project_id" db:"project_id"`

	// FileName is the original name of the uploaded file.
	FileName string `json:"file_name" db:"file_name"`

	// ObjectKey is the identifier of the file in object storage.
	ObjectKey string `json:"object_key" db:"object_key"`

	// UploadedBy identifies the user who attached the file.
	UploadedBy int `json:"uploaded_by" db:"uploaded_by"`

	// Size is the file size in bytes.
	Size int64 `json:"size" db:"size"`

	// ContentType is the MIME type reported at upload time.
	ContentType string `json:"content_type" db:"content_type"`

	// UploadedAt is the timestamp when the file was attached.
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}
