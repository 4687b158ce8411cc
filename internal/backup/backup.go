package backup

import (
	"context"
	"time"

	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

// FormatVersion tags exported documents. Importers ignore unknown fields, so
// additive format changes stay readable by older code.
const FormatVersion = 1

const exportLimit = 10000

// Document is the exported snapshot of one owner's notes.
type Document struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	UserID     string         `json:"user_id"`
	Count      int            `json:"count"`
	Notes      []*models.Note `json:"notes"`
}

// ImportResult aggregates per-note outcomes; a bad entry never aborts the
// rest of the batch.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Codec snapshots and restores note sets through the store, never touching
// the enrichment queue: imported notes keep the status they were exported
// with.
type Codec struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewCodec(store storage.Storage, logger *zap.Logger) *Codec {
	return &Codec{
		store:  store,
		logger: logger,
	}
}

// Export is a pure read of the owner's notes.
func (c *Codec) Export(ctx context.Context, ownerID string) (*Document, error) {
	notes, err := c.store.ListAllNotes(ctx, ownerID, exportLimit)
	if err != nil {
		return nil, err
	}

	return &Document{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC(),
		UserID:     ownerID,
		Count:      len(notes),
		Notes:      notes,
	}, nil
}

// Import inserts notes that are not already present, by id. Existing ids are
// skipped untouched, malformed entries are counted and passed over, and
// nothing is ever re-enqueued for enrichment.
func (c *Codec) Import(ctx context.Context, ownerID string, notes []*models.Note) (*ImportResult, error) {
	result := &ImportResult{}

	for _, note := range notes {
		if note == nil {
			result.Errors++
			continue
		}

		sanitized, ok := sanitize(ownerID, note)
		if !ok {
			result.Errors++
			continue
		}

		inserted, err := c.store.InsertIfAbsent(ctx, sanitized)
		if err != nil {
			c.logger.Error("Failed to import note",
				zap.String("note_id", sanitized.ID),
				zap.Error(err))
			result.Errors++
			continue
		}
		if inserted {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

// sanitize validates an incoming entry and scopes it to the importing owner.
// A missing id gets a fresh one (the entry cannot collide); a missing status
// is treated as ready so nothing old re-enters the pipeline.
func sanitize(ownerID string, note *models.Note) (*models.Note, bool) {
	if !models.ValidType(note.Type) {
		return nil, false
	}

	out := note.Clone()
	out.OwnerID = ownerID

	if out.ID == "" {
		out.ID = models.NewNoteID()
	}

	switch out.Status {
	case models.StatusPending, models.StatusProcessing, models.StatusReady, models.StatusFailed:
	case "":
		out.Status = models.StatusReady
	default:
		return nil, false
	}

	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return out, true
}
