package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/provider"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

type Config struct {
	PoolSize    int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize < 1 {
		c.PoolSize = 4
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	return c
}

// Pool runs the enrichment state machine: it claims pending notes, performs
// the type-specific provider calls, and commits the outcome. At most one
// attempt is ever in flight per note because the claim is a conditional store
// update, not an in-memory flag.
type Pool struct {
	store    storage.Storage
	provider provider.AIProvider
	fallback *provider.KeywordTagger
	cfg      Config
	logger   *zap.Logger

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(store storage.Storage, aiProvider provider.AIProvider, fallback *provider.KeywordTagger, cfg Config, logger *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:    store,
		provider: aiProvider,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan string, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers and re-enqueues notes left unfinished by an
// earlier run.
func (p *Pool) Start() error {
	for i := 0; i < p.cfg.PoolSize; i++ {
		p.wg.Add(1)
		go p.run()
	}

	ids, err := p.store.UnfinishedNotes(p.ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p.Enqueue(id)
	}
	if len(ids) > 0 {
		p.logger.Info("Requeued unfinished notes", zap.Int("count", len(ids)))
	}
	return nil
}

// Stop cancels in-flight provider calls and waits for the workers to drain.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Enqueue hands a note id to the pool without blocking the caller. When the
// queue is full the send is completed from a goroutine; duplicate deliveries
// are harmless because losers of the claim skip the note.
func (p *Pool) Enqueue(id string) {
	select {
	case p.queue <- id:
	default:
		go func() {
			select {
			case p.queue <- id:
			case <-p.ctx.Done():
			}
		}()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.queue:
			p.process(id)
		}
	}
}

func (p *Pool) process(id string) {
	note, err := p.store.ClaimNote(p.ctx, id)
	if err != nil {
		// Deleted, already claimed, or already finished: nothing to do.
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotClaimable) {
			p.logger.Debug("Skipping unclaimable note", zap.String("note_id", id), zap.Error(err))
			return
		}
		p.logger.Error("Failed to claim note", zap.String("note_id", id), zap.Error(err))
		return
	}

	enr, err := p.enrich(note)
	if err != nil {
		p.handleFailure(note, err)
		return
	}

	if err := p.store.CompleteNote(p.ctx, id, enr); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted while we were enriching; discard the result.
			p.logger.Info("Discarding enrichment for deleted note", zap.String("note_id", id))
			return
		}
		p.logger.Error("Failed to commit enrichment", zap.String("note_id", id), zap.Error(err))
		return
	}

	p.logger.Info("Note enriched",
		zap.String("note_id", id),
		zap.String("type", string(note.Type)),
		zap.Int("attempt", note.Attempts))
}

func (p *Pool) handleFailure(note *models.Note, err error) {
	if provider.IsTransient(err) && note.Attempts < p.cfg.MaxAttempts {
		if relErr := p.store.ReleaseNote(p.ctx, note.ID); relErr != nil {
			if !errors.Is(relErr, storage.ErrNotFound) {
				p.logger.Error("Failed to release note for retry",
					zap.String("note_id", note.ID), zap.Error(relErr))
			}
			return
		}

		backoff := p.cfg.BaseBackoff << (note.Attempts - 1)
		p.logger.Warn("Enrichment attempt failed, retrying",
			zap.String("note_id", note.ID),
			zap.Int("attempt", note.Attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.AfterFunc(backoff, func() { p.Enqueue(note.ID) })
		go func() {
			<-p.ctx.Done()
			timer.Stop()
		}()
		return
	}

	if failErr := p.store.FailNote(p.ctx, note.ID, err.Error()); failErr != nil {
		if !errors.Is(failErr, storage.ErrNotFound) {
			p.logger.Error("Failed to mark note as failed",
				zap.String("note_id", note.ID), zap.Error(failErr))
		}
		return
	}

	p.logger.Error("Note enrichment failed",
		zap.String("note_id", note.ID),
		zap.Int("attempts", note.Attempts),
		zap.Error(err))
}

// callCtx bounds a single provider call so a stuck provider cannot hold a
// worker past the configured timeout.
func (p *Pool) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(p.ctx, p.cfg.CallTimeout)
}
