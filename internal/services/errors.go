package services

import (
	"errors"
	"fmt"
)

// Track lookup failures. Each must surface as a distinct user-facing
// message: "not found" is not the same as "wrong email".
var (
	// ErrOwnerNotFound is returned when a project exists but its owning
	// user cannot be resolved.
	ErrOwnerNotFound = errors.New("project owner not found")

	// ErrEmailMismatch is returned when the supplied email does not
	// match the project owner's stored email.
	ErrEmailMismatch = errors.New("email does not match project owner")
)

// ErrFeatureRequiresApproval is returned when featuring a testimonial
// that has not been approved while the approval policy is enabled.
var ErrFeatureRequiresApproval = errors.New("testimonial must be approved before it can be featured")

// PartialFailureError reports a multi-step mutation where the first
// step applied and a later one failed. The UI must not claim full
// success in that case.
type PartialFailureError struct {
	// Applied names the step that committed before the failure.
	Applied string

	// Err is the failure from the step that did not apply.
	Err error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s applied but a later step failed: %v", e.Applied, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
