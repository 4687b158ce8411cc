package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/provider"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

type Config struct {
	CandidateLimit int           // notes loaded per query
	RankLimit      int           // candidates handed to the provider
	CallTimeout    time.Duration // bound on the provider call
}

func (c Config) withDefaults() Config {
	if c.CandidateLimit < 1 {
		c.CandidateLimit = 200
	}
	if c.RankLimit < 1 {
		c.RankLimit = 50
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Engine answers free-text queries over a single owner's notes. A cheap local
// substring pass runs first; the provider is only consulted when it finds
// nothing, and a provider failure degrades to the (empty) local result rather
// than an error.
type Engine struct {
	store    storage.Storage
	provider provider.AIProvider
	cfg      Config
	logger   *zap.Logger
}

func NewEngine(store storage.Storage, aiProvider provider.AIProvider, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		provider: aiProvider,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (e *Engine) Search(ctx context.Context, ownerID, query string) ([]*models.Note, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.Note{}, nil
	}

	// Owner scoping happens at the store read, before anything reaches the
	// provider.
	candidates, err := e.store.ListAllNotes(ctx, ownerID, e.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []*models.Note{}, nil
	}

	if local := localMatch(candidates, query); len(local) > 0 {
		return local, nil
	}

	ranked := candidates
	if len(ranked) > e.cfg.RankLimit {
		ranked = ranked[:e.cfg.RankLimit]
	}

	byID := make(map[string]*models.Note, len(ranked))
	slices := make([]provider.Candidate, 0, len(ranked))
	for _, note := range ranked {
		byID[note.ID] = note
		slices = append(slices, provider.Candidate{
			ID:      note.ID,
			Title:   note.Title,
			Summary: note.Summary,
			Tags:    note.Tags,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	ids, err := e.provider.SemanticRank(callCtx, query, slices)
	if err != nil {
		e.logger.Warn("Semantic ranking failed, falling back to local match",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return []*models.Note{}, nil
	}

	results := make([]*models.Note, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		note, ok := byID[id]
		if !ok {
			continue // provider may not invent notes
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, note)
	}
	return results, nil
}

// localMatch does a case-insensitive substring search over each note's
// fields, ranked by how many fields matched and then by recency.
func localMatch(notes []*models.Note, query string) []*models.Note {
	needle := strings.ToLower(query)

	type scored struct {
		note  *models.Note
		count int
	}

	var matched []scored
	for _, note := range notes {
		count := 0
		for _, field := range []string{
			note.Title, note.Summary, note.RawContent, note.URL, note.SourcePlatform,
		} {
			if field != "" && strings.Contains(strings.ToLower(field), needle) {
				count++
			}
		}
		for _, tag := range note.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				count++
				break
			}
		}
		if count > 0 {
			matched = append(matched, scored{note: note, count: count})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].count != matched[j].count {
			return matched[i].count > matched[j].count
		}
		return matched[i].note.CreatedAt.After(matched[j].note.CreatedAt)
	})

	out := make([]*models.Note, 0, len(matched))
	for _, m := range matched {
		out = append(out, m.note)
	}
	return out
}
