package storage

import (
	"context"
	"errors"

	"github.com/xaenox/linkstash/internal/models"
)

var (
	// ErrNotFound is returned when a note does not exist or belongs to a
	// different owner.
	ErrNotFound = errors.New("note not found")
	// ErrConflict is returned when creating a note whose id already exists.
	ErrConflict = errors.New("note already exists")
	// ErrNotClaimable is returned by state-transition methods when the note is
	// not in the state the transition requires.
	ErrNotClaimable = errors.New("note is not in a claimable state")
)

type ListOptions struct {
	Tag   string
	Page  int
	Limit int
}

// Storage persists notes and owns their status transitions. The transition
// methods (Claim, Complete, Fail, Release) are keyed by id alone because the
// enrichment queue carries ids, and each applies its state check and write as
// a single conditional update so concurrent workers cannot both win a claim.
type Storage interface {
	CreateNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, ownerID, id string) (*models.Note, error)
	ListNotes(ctx context.Context, ownerID string, opts ListOptions) ([]*models.Note, int, error)
	ListAllNotes(ctx context.Context, ownerID string, limit int) ([]*models.Note, error)
	DeleteNote(ctx context.Context, ownerID, id string) error

	// InsertIfAbsent adds a note only when its id is not present, reporting
	// whether an insert happened. Used by backup import.
	InsertIfAbsent(ctx context.Context, note *models.Note) (bool, error)

	// ClaimNote moves pending -> processing, bumping the attempt counter.
	// Exactly one caller wins when several race on the same id; losers get
	// ErrNotClaimable (or ErrNotFound if the note was deleted).
	ClaimNote(ctx context.Context, id string) (*models.Note, error)
	// CompleteNote moves processing -> ready, committing all derived fields in
	// one write.
	CompleteNote(ctx context.Context, id string, enr models.Enrichment) error
	// FailNote moves processing -> failed and records the reason.
	FailNote(ctx context.Context, id string, reason string) error
	// ReleaseNote moves processing -> pending for a retry.
	ReleaseNote(ctx context.Context, id string) error

	// UnfinishedNotes returns ids still pending, plus ids left in processing
	// by an interrupted run after resetting them to pending. Used by the
	// startup requeue sweep.
	UnfinishedNotes(ctx context.Context) ([]string, error)

	Close() error
}
