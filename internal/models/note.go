package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type NoteType string

const (
	LinkNote  NoteType = "link"
	TextNote  NoteType = "text"
	VoiceNote NoteType = "voice"
	ImageNote NoteType = "image"
)

// ValidType reports whether t is one of the four supported capture kinds.
func ValidType(t NoteType) bool {
	switch t {
	case LinkNote, TextNote, VoiceNote, ImageNote:
		return true
	}
	return false
}

type NoteStatus string

const (
	StatusPending    NoteStatus = "pending"
	StatusProcessing NoteStatus = "processing"
	StatusReady      NoteStatus = "ready"
	StatusFailed     NoteStatus = "failed"
)

// Note is a captured item plus the metadata derived for it by enrichment.
// RawInput holds the capture payload (URL, text body, or base64 media) and is
// immutable after creation; RawContent holds text recovered from media
// (transcript or OCR output) and is written by enrichment.
type Note struct {
	ID             string     `json:"note_id"`
	OwnerID        string     `json:"user_id"`
	Type           NoteType   `json:"type"`
	Status         NoteStatus `json:"status"`
	Attempts       int        `json:"attempts,omitempty"`
	Title          string     `json:"title"`
	URL            string     `json:"url,omitempty"`
	RawInput       string     `json:"raw_input,omitempty"`
	RawContent     string     `json:"raw_content,omitempty"`
	Summary        string     `json:"summary"`
	Tags           []string   `json:"tags"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
	SourcePlatform string     `json:"source_platform,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	UserTitled     bool       `json:"user_titled,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewNoteID returns an id in the service's note_<12 hex> form.
func NewNoteID() string {
	return fmt.Sprintf("note_%s", strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// Clone returns a deep copy so callers can hand notes across goroutines
// without sharing the tags slice.
func (n *Note) Clone() *Note {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	return &c
}

// Enrichment is the set of derived fields a single enrichment attempt commits
// in one atomic store update. Fields overwrite wholesale so re-running an
// attempt never appends to a previous one.
type Enrichment struct {
	Title          string
	Summary        string
	Tags           []string
	Thumbnail      string
	RawContent     string
	SourcePlatform string
}
