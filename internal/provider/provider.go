package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for the retry policy: transient
// failures are retried with backoff, everything else fails the note at once.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindInvalidInput:
		return "invalid_input"
	}
	return "unknown"
}

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

func InvalidInput(op string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient so a provider hiccup never permanently fails a note.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return true
}

// LinkMetadata is what ExtractLinkMetadata recovers from a page's open-graph
// tags, with plain HTML fallbacks for title and description.
type LinkMetadata struct {
	Title       string
	Description string
	Thumbnail   string
}

// Candidate is the slice of a note handed to SemanticRank.
type Candidate struct {
	ID      string
	Title   string
	Summary string
	Tags    []string
}

// AIProvider abstracts the external AI operations behind one contract per
// capability. Implementations classify their failures as *Error; callers
// bound every call with a context timeout.
type AIProvider interface {
	// Summarize produces a 2-3 sentence summary of the content.
	Summarize(ctx context.Context, content string) (string, error)
	// ExtractLinkMetadata fetches a page and recovers title/description/thumbnail.
	ExtractLinkMetadata(ctx context.Context, url string) (*LinkMetadata, error)
	// Transcribe converts base64 audio to text.
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
	// ExtractTextFromImage runs OCR-style extraction over base64 image data.
	ExtractTextFromImage(ctx context.Context, imageBase64 string) (string, error)
	// Tag returns a small deduplicated set of lower-case labels; an empty set
	// is a valid result.
	Tag(ctx context.Context, content string) ([]string, error)
	// SemanticRank returns the ids of the candidates relevant to the query,
	// most relevant first. Ids not present in the candidate set never appear.
	SemanticRank(ctx context.Context, query string, candidates []Candidate) ([]string, error)
}
