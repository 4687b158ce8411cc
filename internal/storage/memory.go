package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/linkstash/internal/models"
)

type MemoryStorage struct {
	mu    sync.RWMutex
	notes map[string]*models.Note
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notes: make(map[string]*models.Note),
	}
}

func (s *MemoryStorage) CreateNote(ctx context.Context, note *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[note.ID]; exists {
		return ErrConflict
	}

	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	s.notes[note.ID] = note.Clone()
	return nil
}

func (s *MemoryStorage) GetNote(ctx context.Context, ownerID, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, exists := s.notes[id]
	if !exists || note.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return note.Clone(), nil
}

func (s *MemoryStorage) ListNotes(ctx context.Context, ownerID string, opts ListOptions) ([]*models.Note, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Note
	for _, note := range s.notes {
		if note.OwnerID != ownerID {
			continue
		}
		if opts.Tag != "" && !hasTag(note, opts.Tag) {
			continue
		}
		matched = append(matched, note)
	}
	sortByCreatedDesc(matched)

	total := len(matched)
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 50
	}

	start := (page - 1) * limit
	if start >= total {
		return []*models.Note{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*models.Note, 0, end-start)
	for _, note := range matched[start:end] {
		out = append(out, note.Clone())
	}
	return out, total, nil
}

func (s *MemoryStorage) ListAllNotes(ctx context.Context, ownerID string, limit int) ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Note
	for _, note := range s.notes {
		if note.OwnerID == ownerID {
			matched = append(matched, note)
		}
	}
	sortByCreatedDesc(matched)

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.Note, 0, len(matched))
	for _, note := range matched {
		out = append(out, note.Clone())
	}
	return out, nil
}

func (s *MemoryStorage) DeleteNote(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists || note.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

func (s *MemoryStorage) InsertIfAbsent(ctx context.Context, note *models.Note) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[note.ID]; exists {
		return false, nil
	}
	note.UpdatedAt = time.Now().UTC()
	s.notes[note.ID] = note.Clone()
	return true, nil
}

func (s *MemoryStorage) ClaimNote(ctx context.Context, id string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return nil, ErrNotFound
	}
	if note.Status != models.StatusPending {
		return nil, ErrNotClaimable
	}

	note.Status = models.StatusProcessing
	note.Attempts++
	note.UpdatedAt = time.Now().UTC()
	return note.Clone(), nil
}

func (s *MemoryStorage) CompleteNote(ctx context.Context, id string, enr models.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return ErrNotFound
	}
	if note.Status != models.StatusProcessing {
		return ErrNotClaimable
	}

	note.Title = enr.Title
	note.Summary = enr.Summary
	note.Tags = append([]string(nil), enr.Tags...)
	note.Thumbnail = enr.Thumbnail
	note.RawContent = enr.RawContent
	note.SourcePlatform = enr.SourcePlatform
	note.FailureReason = ""
	note.Status = models.StatusReady
	note.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStorage) FailNote(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return ErrNotFound
	}
	if note.Status != models.StatusProcessing {
		return ErrNotClaimable
	}

	note.Status = models.StatusFailed
	note.FailureReason = reason
	note.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStorage) ReleaseNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[id]
	if !exists {
		return ErrNotFound
	}
	if note.Status != models.StatusProcessing {
		return ErrNotClaimable
	}

	note.Status = models.StatusPending
	note.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStorage) UnfinishedNotes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, note := range s.notes {
		switch note.Status {
		case models.StatusProcessing:
			// Left behind by an interrupted run; make it claimable again.
			note.Status = models.StatusPending
			note.UpdatedAt = time.Now().UTC()
			ids = append(ids, id)
		case models.StatusPending:
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func hasTag(note *models.Note, tag string) bool {
	for _, t := range note.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sortByCreatedDesc(notes []*models.Note) {
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}
