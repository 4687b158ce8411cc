package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/provider"
)

const untitled = "Untitled"

// enrich runs the type-specific pipeline and returns the full set of derived
// fields for a single atomic commit. A user-supplied title is always carried
// through unchanged.
func (p *Pool) enrich(note *models.Note) (models.Enrichment, error) {
	switch note.Type {
	case models.LinkNote:
		return p.enrichLink(note)
	case models.TextNote:
		return p.enrichText(note)
	case models.VoiceNote:
		return p.enrichVoice(note)
	case models.ImageNote:
		return p.enrichImage(note)
	}
	return models.Enrichment{}, provider.Permanent("enrich",
		fmt.Errorf("unsupported note type %q", note.Type))
}

func (p *Pool) enrichLink(note *models.Note) (models.Enrichment, error) {
	meta, err := call(p, func(ctx context.Context) (*provider.LinkMetadata, error) {
		return p.provider.ExtractLinkMetadata(ctx, note.URL)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	var excerpt []string
	if meta.Title != "" {
		excerpt = append(excerpt, "Title: "+meta.Title)
	}
	if meta.Description != "" {
		excerpt = append(excerpt, "Description: "+meta.Description)
	}
	excerpt = append(excerpt, "URL: "+note.URL)

	summary, err := call(p, func(ctx context.Context) (string, error) {
		return p.provider.Summarize(ctx, strings.Join(excerpt, "\n"))
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	tagSource := summary
	if tagSource == "" {
		tagSource = strings.Join(excerpt, "\n")
	}
	tags, err := call(p, func(ctx context.Context) ([]string, error) {
		return p.provider.Tag(ctx, tagSource)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	title := note.Title
	if !note.UserTitled {
		title = meta.Title
		if title == "" {
			title = untitled
		}
	}

	return models.Enrichment{
		Title:          title,
		Summary:        summary,
		Tags:           tags,
		Thumbnail:      meta.Thumbnail,
		SourcePlatform: models.DetectPlatform(note.URL),
	}, nil
}

func (p *Pool) enrichText(note *models.Note) (models.Enrichment, error) {
	content := note.RawInput

	summary, err := call(p, func(ctx context.Context) (string, error) {
		return p.provider.Summarize(ctx, content)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	tags, err := call(p, func(ctx context.Context) ([]string, error) {
		return p.provider.Tag(ctx, content)
	})
	if err != nil {
		return models.Enrichment{}, err
	}
	if len(tags) == 0 && p.fallback != nil {
		tags = p.fallback.Tag(content)
	}

	title := note.Title
	if !note.UserTitled {
		title = deriveTitle(content)
	}

	return models.Enrichment{
		Title:   title,
		Summary: summary,
		Tags:    tags,
	}, nil
}

func (p *Pool) enrichVoice(note *models.Note) (models.Enrichment, error) {
	transcript, err := call(p, func(ctx context.Context) (string, error) {
		return p.provider.Transcribe(ctx, note.RawInput)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	return p.enrichExtracted(note, transcript)
}

func (p *Pool) enrichImage(note *models.Note) (models.Enrichment, error) {
	extracted, err := call(p, func(ctx context.Context) (string, error) {
		return p.provider.ExtractTextFromImage(ctx, note.RawInput)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	return p.enrichExtracted(note, extracted)
}

// enrichExtracted finishes the voice and image paths once text has been
// recovered from the media. Empty extraction is a valid outcome: the note
// becomes ready with no summary or tags rather than failed.
func (p *Pool) enrichExtracted(note *models.Note, extracted string) (models.Enrichment, error) {
	enr := models.Enrichment{
		Title:      note.Title,
		RawContent: extracted,
	}

	if extracted == "" {
		if !note.UserTitled {
			enr.Title = untitled
		}
		enr.Tags = []string{}
		return enr, nil
	}

	summary, err := call(p, func(ctx context.Context) (string, error) {
		return p.provider.Summarize(ctx, extracted)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	tags, err := call(p, func(ctx context.Context) ([]string, error) {
		return p.provider.Tag(ctx, extracted)
	})
	if err != nil {
		return models.Enrichment{}, err
	}

	enr.Summary = summary
	enr.Tags = tags
	if !note.UserTitled {
		enr.Title = deriveTitle(extracted)
	}
	return enr, nil
}

// call wraps a single provider call with the pool's timeout.
func call[T any](p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := p.callCtx()
	defer cancel()
	return fn(ctx)
}

// deriveTitle builds a display title from content the user did not name:
// the first line, truncated to 60 characters.
func deriveTitle(content string) string {
	line := strings.TrimSpace(content)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return untitled
	}
	runes := []rune(line)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return line
}
