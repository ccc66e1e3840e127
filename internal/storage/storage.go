// Package storage defines the transactional store the label services run on.
// Implementations live in the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"example.com/labelengine/internal/domain"
)

// ErrNotFound is returned by Tx lookups that match no row.
var ErrNotFound = errors.New("storage: not found")

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("storage: write in read-only transaction")

// Store runs units of work atomically. fn's writes are committed only when fn
// returns nil; any error rolls back everything fn did.
type Store interface {
	InTx(ctx context.Context, op string, fn func(tx Tx) error) error
	View(ctx context.Context, op string, fn func(tx Tx) error) error
	Ready(ctx context.Context) error
	Close()
}

// VersionFilter selects versions for ListVersions. A nil LabelID lists every label.
type VersionFilter struct {
	LabelID *int64
	Limit   int
}

// Tx is the record-level API available inside a transaction. Methods taking a
// lock flag acquire a row lock held until the transaction ends.
type Tx interface {
	InsertLabel(ctx context.Context, content domain.Content, at time.Time) (int64, error)
	UpsertLabel(ctx context.Context, id int64, content domain.Content, at time.Time) error
	GetLabel(ctx context.Context, id int64, lock bool) (domain.Label, error)
	SetCurrentVersion(ctx context.Context, labelID, versionID int64, content domain.Content, at time.Time) error
	UpdateLabelMetadata(ctx context.Context, id int64, m domain.Metadata, at time.Time) error

	InsertVersion(ctx context.Context, v domain.Version) (domain.Version, error)
	GetVersion(ctx context.Context, id int64, lock bool) (domain.Version, error)
	LatestVersion(ctx context.Context, labelID int64) (domain.Version, error)
	ListVersions(ctx context.Context, f VersionFilter) ([]domain.Version, error)
	UpdateVersionContent(ctx context.Context, id int64, c domain.Content) error
	SetVersionStatus(ctx context.Context, id int64, code domain.StatusCode, externalID *string, at time.Time) error

	GetDraft(ctx context.Context, labelID int64) (domain.Draft, error)
	PutDraft(ctx context.Context, d domain.Draft) error

	ListActiveRules(ctx context.Context, category string) ([]domain.Rule, error)
	GetRule(ctx context.Context, category string, ref domain.RuleRef) (domain.Rule, error)
	UpsertRule(ctx context.Context, r domain.Rule) error

	InsertSession(ctx context.Context, s domain.Session) (domain.Session, error)
	GetSession(ctx context.Context, id int64, lock bool) (domain.Session, error)
	ListSessions(ctx context.Context, versionID int64) ([]domain.Session, error)
	FinalizeSession(ctx context.Context, id int64, at time.Time) error

	InsertReviewEvent(ctx context.Context, e domain.ReviewEvent) (domain.ReviewEvent, error)
	ListReviewEvents(ctx context.Context, sessionID int64) ([]domain.ReviewEvent, error)

	InsertStatusEvent(ctx context.Context, e domain.StatusEvent) (domain.StatusEvent, error)
	ListStatusEvents(ctx context.Context, versionID int64) ([]domain.StatusEvent, error)
	LatestStatusEvents(ctx context.Context) ([]domain.StatusEvent, error)
}

// NotFoundAs converts ErrNotFound into a domain.NotFoundError naming entity and id.
// Other errors are returned unchanged.
func NotFoundAs(err error, entity string, id any) error {
	if errors.Is(err, ErrNotFound) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return err
}
