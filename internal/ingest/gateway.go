package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

// ValidationError rejects a capture before any note is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Enqueuer is the enrichment intake; Enqueue must not block the caller.
type Enqueuer interface {
	Enqueue(id string)
}

// SubmitRequest is a raw capture. Exactly one payload field is meaningful,
// selected by Type.
type SubmitRequest struct {
	Type        models.NoteType `json:"type"`
	URL         string          `json:"url,omitempty"`
	Title       string          `json:"title,omitempty"`
	RawContent  string          `json:"raw_content,omitempty"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	AudioBase64 string          `json:"audio_base64,omitempty"`
}

// Gateway validates captures, persists the pending stub and hands the id to
// the enrichment intake. Submit returns as soon as the stub is durable; the
// caller never waits on enrichment.
type Gateway struct {
	store  storage.Storage
	queue  Enqueuer
	logger *zap.Logger
}

func NewGateway(store storage.Storage, queue Enqueuer, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

func (g *Gateway) Submit(ctx context.Context, ownerID string, req SubmitRequest) (*models.Note, error) {
	rawInput, err := validate(req)
	if err != nil {
		return nil, err
	}

	note := &models.Note{
		ID:       models.NewNoteID(),
		OwnerID:  ownerID,
		Type:     req.Type,
		Status:   models.StatusPending,
		Title:    strings.TrimSpace(req.Title),
		RawInput: rawInput,
		Tags:     []string{},
	}
	note.UserTitled = note.Title != ""

	if req.Type == models.LinkNote {
		note.URL = rawInput
		note.SourcePlatform = models.DetectPlatform(rawInput)
	}

	if err := g.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}

	g.queue.Enqueue(note.ID)
	g.logger.Info("Accepted capture",
		zap.String("note_id", note.ID),
		zap.String("owner_id", ownerID),
		zap.String("type", string(req.Type)))

	return note, nil
}

func validate(req SubmitRequest) (string, error) {
	if !models.ValidType(req.Type) {
		return "", &ValidationError{Field: "type", Reason: "must be one of link, text, voice, image"}
	}

	switch req.Type {
	case models.LinkNote:
		raw := strings.TrimSpace(req.URL)
		if raw == "" {
			return "", &ValidationError{Field: "url", Reason: "required for link notes"}
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", &ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
		}
		return raw, nil

	case models.TextNote:
		if strings.TrimSpace(req.RawContent) == "" {
			return "", &ValidationError{Field: "raw_content", Reason: "required for text notes"}
		}
		return req.RawContent, nil

	case models.VoiceNote:
		return validatePayload("audio_base64", req.AudioBase64)

	case models.ImageNote:
		return validatePayload("image_base64", req.ImageBase64)
	}

	return "", &ValidationError{Field: "type", Reason: "unsupported type"}
}

func validatePayload(field, payload string) (string, error) {
	if payload == "" {
		return "", &ValidationError{Field: field, Reason: "required"}
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "must be valid base64"}
	}
	if len(decoded) == 0 {
		return "", &ValidationError{Field: field, Reason: "payload is empty"}
	}
	return payload, nil
}
