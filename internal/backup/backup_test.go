package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

func seedNote(t *testing.T, store storage.Storage, id, owner string, status models.NoteStatus) *models.Note {
	t.Helper()
	note := &models.Note{
		ID:        id,
		OwnerID:   owner,
		Type:      models.TextNote,
		Status:    status,
		Title:     "Title " + id,
		Summary:   "Summary " + id,
		Tags:      []string{"tag-" + id},
		RawInput:  "raw " + id,
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	require.NoError(t, store.CreateNote(context.Background(), note))
	return note
}

func TestExportSnapshot(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	seedNote(t, store, "note_1", "user_a", models.StatusReady)
	seedNote(t, store, "note_2", "user_a", models.StatusFailed)
	seedNote(t, store, "note_3", "user_b", models.StatusReady)

	doc, err := codec.Export(context.Background(), "user_a")
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, doc.Version)
	assert.Equal(t, "user_a", doc.UserID)
	assert.Equal(t, 2, doc.Count)
	assert.Len(t, doc.Notes, 2)
	assert.False(t, doc.ExportedAt.IsZero())
}

func TestExportImportRoundTrip(t *testing.T) {
	source := storage.NewMemoryStorage()
	codec := NewCodec(source, zap.NewNop())

	original := []*models.Note{
		seedNote(t, source, "note_1", "user_a", models.StatusReady),
		seedNote(t, source, "note_2", "user_a", models.StatusFailed),
	}

	doc, err := codec.Export(context.Background(), "user_a")
	require.NoError(t, err)

	// Restore into an empty store
	target := storage.NewMemoryStorage()
	targetCodec := NewCodec(target, zap.NewNop())

	result, err := targetCodec.Import(context.Background(), "user_a", doc.Notes)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 2}, result)

	for _, want := range original {
		got, err := target.GetNote(context.Background(), "user_a", want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Summary, got.Summary)
		assert.Equal(t, want.Tags, got.Tags)
		// Status comes through verbatim; nothing is re-enqueued
		assert.Equal(t, want.Status, got.Status)
	}
}

func TestImportSkipsExistingIDs(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	existing := seedNote(t, store, "note_1", "user_a", models.StatusReady)

	incoming := existing.Clone()
	incoming.Title = "overwritten?"

	result, err := codec.Import(context.Background(), "user_a", []*models.Note{incoming})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Skipped: 1}, result)

	got, err := store.GetNote(context.Background(), "user_a", "note_1")
	require.NoError(t, err)
	assert.Equal(t, existing.Title, got.Title, "existing note stays untouched")
}

func TestImportIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	notes := []*models.Note{
		{ID: "note_1", Type: models.TextNote, Status: models.StatusReady, Title: "one"},
		{ID: "note_2", Type: models.LinkNote, Status: models.StatusReady, Title: "two"},
	}

	first, err := codec.Import(context.Background(), "user_a", notes)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 2}, first)

	second, err := codec.Import(context.Background(), "user_a", notes)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Skipped: 2}, second)
}

func TestImportCountsMalformedEntries(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	notes := []*models.Note{
		nil,
		{ID: "note_badtype", Type: "carrier-pigeon", Status: models.StatusReady},
		{ID: "note_badstatus", Type: models.TextNote, Status: "limbo"},
		{ID: "note_ok", Type: models.TextNote, Status: models.StatusReady, Title: "fine"},
	}

	result, err := codec.Import(context.Background(), "user_a", notes)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 1, Errors: 3}, result)

	// The valid entry landed despite its bad neighbors
	_, err = store.GetNote(context.Background(), "user_a", "note_ok")
	assert.NoError(t, err)
}

func TestImportGeneratesMissingIDs(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	result, err := codec.Import(context.Background(), "user_a", []*models.Note{
		{Type: models.TextNote, Status: models.StatusReady, Title: "no id"},
	})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 1}, result)

	notes, err := store.ListAllNotes(context.Background(), "user_a", 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.NotEmpty(t, notes[0].ID)
}

func TestImportScopesNotesToImportingOwner(t *testing.T) {
	store := storage.NewMemoryStorage()
	codec := NewCodec(store, zap.NewNop())

	_, err := codec.Import(context.Background(), "user_b", []*models.Note{
		{ID: "note_1", OwnerID: "user_a", Type: models.TextNote, Status: models.StatusReady},
	})
	require.NoError(t, err)

	_, err = store.GetNote(context.Background(), "user_b", "note_1")
	assert.NoError(t, err)
	_, err = store.GetNote(context.Background(), "user_a", "note_1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
