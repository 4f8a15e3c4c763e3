package types

import "time"

// Supported account roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Academic levels accepted on profiles and project requests.
const (
	LevelUndergraduate = "undergraduate"
	LevelMasters       = "masters"
	LevelPhD           = "phd"
)

// ValidLevel reports whether level is one of the accepted academic levels.
func ValidLevel(level string) bool {
	switch level {
	case LevelUndergraduate, LevelMasters, LevelPhD:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, profile, aggregate counters, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address. Unique per account.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role indicates the user's authorization level within the system
	// ("student" or "admin").
	Role string `json:"role" db:"role"`

	// School is the institution the user attends.
	School string `json:"school" db:"school"`

	// Course is the user's course or program of study.
	Course string `json:"course" db:"course"`

	// Level is the user's academic level
	// ("undergraduate", "masters", or "phd").
	Level string `json:"level" db:"level"`

	// Phone is the user's contact phone number.
	Phone string `json:"phone" db:"phone"`

	// Location is the user's city or region.
	Location string `json:"location" db:"location"`

	// ProjectsSubmitted counts the projects the user has requested.
	ProjectsSubmitted int `json:"projects_submitted" db:"projects_submitted"`

	// ProjectsCompleted counts the user's projects that reached the
	// completed status.
	ProjectsCompleted int `json:"projects_completed" db:"projects_completed"`

	// LifetimeSpend is the user's total spend across completed projects,
	// in the smallest currency unit.
	LifetimeSpend int64 `json:"lifetime_spend" db:"lifetime_spend"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastActiveAt is the timestamp of the user's most recent activity.
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
}
