package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/provider"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

// fakeProvider answers every capability with canned values; individual calls
// can be overridden per test.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	summarizeFn  func(content string) (string, error)
	tagFn        func(content string) ([]string, error)
	transcribeFn func(audio string) (string, error)
	ocrFn        func(image string) (string, error)
	metadataFn   func(url string) (*provider.LinkMetadata, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int)}
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeProvider) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) Summarize(ctx context.Context, content string) (string, error) {
	f.count("summarize")
	if f.summarizeFn != nil {
		return f.summarizeFn(content)
	}
	return "a concise summary", nil
}

func (f *fakeProvider) Tag(ctx context.Context, content string) ([]string, error) {
	f.count("tag")
	if f.tagFn != nil {
		return f.tagFn(content)
	}
	return []string{"alpha", "beta"}, nil
}

func (f *fakeProvider) Transcribe(ctx context.Context, audio string) (string, error) {
	f.count("transcribe")
	if f.transcribeFn != nil {
		return f.transcribeFn(audio)
	}
	return "the transcribed words", nil
}

func (f *fakeProvider) ExtractTextFromImage(ctx context.Context, image string) (string, error) {
	f.count("ocr")
	if f.ocrFn != nil {
		return f.ocrFn(image)
	}
	return "text recovered from the image", nil
}

func (f *fakeProvider) ExtractLinkMetadata(ctx context.Context, url string) (*provider.LinkMetadata, error) {
	f.count("metadata")
	if f.metadataFn != nil {
		return f.metadataFn(url)
	}
	return &provider.LinkMetadata{
		Title:       "Example Page",
		Description: "An example description",
		Thumbnail:   "https://example.com/thumb.jpg",
	}, nil
}

func (f *fakeProvider) SemanticRank(ctx context.Context, query string, candidates []provider.Candidate) ([]string, error) {
	f.count("rank")
	return nil, nil
}

func newTestPool(t *testing.T, store storage.Storage, fake *fakeProvider) *Pool {
	t.Helper()
	pool := NewPool(store, fake, provider.NewKeywordTagger(8), Config{
		PoolSize:    2,
		QueueSize:   16,
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Millisecond,
		CallTimeout: time.Second,
	}, zap.NewNop())
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Stop)
	return pool
}

func createNote(t *testing.T, store storage.Storage, note *models.Note) *models.Note {
	t.Helper()
	require.NoError(t, store.CreateNote(context.Background(), note))
	return note
}

func waitForStatus(t *testing.T, store storage.Storage, owner, id string, want models.NoteStatus) *models.Note {
	t.Helper()
	var got *models.Note
	require.Eventually(t, func() bool {
		note, err := store.GetNote(context.Background(), owner, id)
		if err != nil {
			return false
		}
		got = note
		return note.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestEnrichTextNote(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_text",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "Remember to buy milk and eggs\nsecond line",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "a concise summary", got.Summary)
	assert.Equal(t, []string{"alpha", "beta"}, got.Tags)
	assert.Equal(t, "Remember to buy milk and eggs", got.Title)
	assert.Equal(t, 1, got.Attempts)
}

func TestEnrichLinkNote(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_link",
		OwnerID:  "user_a",
		Type:     models.LinkNote,
		Status:   models.StatusPending,
		URL:      "https://youtube.com/watch?v=abc",
		RawInput: "https://youtube.com/watch?v=abc",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "Example Page", got.Title)
	assert.Equal(t, "https://example.com/thumb.jpg", got.Thumbnail)
	assert.Equal(t, "youtube", got.SourcePlatform)
	assert.Equal(t, "a concise summary", got.Summary)
}

func TestEnrichLinkKeepsUserTitle(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:         "note_link",
		OwnerID:    "user_a",
		Type:       models.LinkNote,
		Status:     models.StatusPending,
		URL:        "https://example.com/a",
		RawInput:   "https://example.com/a",
		Title:      "My Chosen Title",
		UserTitled: true,
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "My Chosen Title", got.Title)
}

func TestEnrichVoiceNote(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_voice",
		OwnerID:  "user_a",
		Type:     models.VoiceNote,
		Status:   models.StatusPending,
		RawInput: "c29tZSBhdWRpbw==",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "the transcribed words", got.RawContent)
	assert.Equal(t, "the transcribed words", got.Title)
	assert.Equal(t, "a concise summary", got.Summary)
}

func TestEnrichImageEmptyExtraction(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	fake.ocrFn = func(string) (string, error) { return "", nil }
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_image",
		OwnerID:  "user_a",
		Type:     models.ImageNote,
		Status:   models.StatusPending,
		RawInput: "aW1hZ2U=",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "Untitled", got.Title)
	assert.Empty(t, got.Summary)
	assert.Empty(t, got.Tags)

	// Nothing to summarize or tag when extraction comes back empty
	assert.Equal(t, 0, fake.callCount("summarize"))
	assert.Equal(t, 0, fake.callCount("tag"))
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()

	var mu sync.Mutex
	failures := 2
	fake.summarizeFn = func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return "", provider.Transient("summarize", errors.New("rate limited"))
		}
		return "recovered summary", nil
	}
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_retry",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "content",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, "recovered summary", got.Summary)
	assert.Equal(t, 3, got.Attempts)
}

func TestTransientErrorExhaustsToFailed(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	fake.summarizeFn = func(string) (string, error) {
		return "", provider.Transient("summarize", errors.New("upstream timeout"))
	}
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_exhaust",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "content",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusFailed)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.FailureReason, "upstream timeout")
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	fake.metadataFn = func(string) (*provider.LinkMetadata, error) {
		return nil, provider.Permanent("scrape", errors.New("unexpected status 404"))
	}
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:         "note_gone",
		OwnerID:    "user_a",
		Type:       models.LinkNote,
		Status:     models.StatusPending,
		URL:        "https://example.com/missing",
		RawInput:   "https://example.com/missing",
		Title:      "Kept Title",
		UserTitled: true,
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusFailed)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.FailureReason, "404")
	// Stub data survives failure
	assert.Equal(t, "Kept Title", got.Title)
}

func TestDeleteMidEnrichmentDiscardsResult(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()

	started := make(chan struct{})
	release := make(chan struct{})
	fake.summarizeFn = func(string) (string, error) {
		close(started)
		<-release
		return "late summary", nil
	}
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_deleted",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "content",
	})
	pool.Enqueue(note.ID)

	<-started
	require.NoError(t, store.DeleteNote(context.Background(), "user_a", note.ID))
	close(release)

	// The in-flight attempt completes but its result is discarded; the note
	// never comes back.
	assert.Never(t, func() bool {
		_, err := store.GetNote(context.Background(), "user_a", note.ID)
		return err == nil
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestRetryNeverDuplicatesTags(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()

	var mu sync.Mutex
	failOnce := true
	fake.tagFn = func(string) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		if failOnce {
			failOnce = false
			return nil, provider.Transient("tag", errors.New("rate limited"))
		}
		return []string{"one", "two"}, nil
	}
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_idem",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "content",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, []string{"one", "two"}, got.Tags)
	assert.Equal(t, "a concise summary", got.Summary)
}

func TestEmptyProviderTagsFallBackToKeywords(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	fake.tagFn = func(string) ([]string, error) { return nil, nil }
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_kw",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "remember to buy milk #groceries",
	})
	pool.Enqueue(note.ID)

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Contains(t, got.Tags, "groceries")
	assert.Contains(t, got.Tags, "shopping")
}

func TestDuplicateEnqueueIsHarmless(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := newFakeProvider()
	pool := newTestPool(t, store, fake)

	note := createNote(t, store, &models.Note{
		ID:       "note_dup",
		OwnerID:  "user_a",
		Type:     models.TextNote,
		Status:   models.StatusPending,
		RawInput: "content",
	})
	for i := 0; i < 5; i++ {
		pool.Enqueue(note.ID)
	}

	got := waitForStatus(t, store, "user_a", note.ID, models.StatusReady)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, strings.Contains(got.Summary, "a concise summarya concise summary"))
}
