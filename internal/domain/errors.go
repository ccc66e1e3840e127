package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports caller-fixable input problems.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Msg: msg}}}
}

// CheckFields returns a ValidationError when errs is non-empty, else nil.
func CheckFields(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// ConflictError means the operation is illegal in the current state.
type ConflictError struct {
	Reason string
	Meta   map[string]any
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// UnprocessableError means the input is well formed but refers to something unusable,
// such as an inactive rule.
type UnprocessableError struct {
	Reason string
}

func (e *UnprocessableError) Error() string { return e.Reason }

// IncompleteStateError is returned by finalize when active rules lack a decision.
type IncompleteStateError struct {
	SessionID int64
	Missing   []RuleRef
}

func (e *IncompleteStateError) Error() string {
	refs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		refs[i] = m.String()
	}
	return fmt.Sprintf("session %d cannot be finalized: missing decisions for %s", e.SessionID, strings.Join(refs, ", "))
}

// GateViolationError is returned when a forward status is appended to a Version
// without a finalized compliance review.
type GateViolationError struct {
	VersionID int64
	Status    StatusCode
}

func (e *GateViolationError) Error() string {
	return fmt.Sprintf("compliance review must be finalized before version %d can move to %s", e.VersionID, e.Status)
}

// ContentVersionControlledError is returned when a metadata update names a content field.
type ContentVersionControlledError struct {
	Field string
}

func (e *ContentVersionControlledError) Error() string {
	return fmt.Sprintf("field %q is label content and is versioned; publish a new version instead", e.Field)
}

// AdapterError wraps a failed or unusable copy generation call.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string { return fmt.Sprintf("copy generation %s: %v", e.Op, e.Err) }
func (e *AdapterError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the backing store. The transaction was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
