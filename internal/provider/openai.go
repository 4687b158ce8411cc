package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	summarySystemPrompt = "You are a metadata extraction assistant. Given content about a link or note, " +
		"generate a concise summary (2-3 sentences). Respond ONLY in valid JSON format: {\"summary\": \"...\"}"

	tagSystemPrompt = "You are a metadata extraction assistant. Given content about a link or note, " +
		"generate 3-5 relevant short lower-case tags. Respond ONLY in valid JSON format: {\"tags\": [\"tag1\", \"tag2\"]}"

	ocrSystemPrompt = "You are an OCR assistant. Extract all readable text and describe the key content " +
		"from the image. Be concise."

	rankSystemPrompt = "You are a search assistant. Given a user query and a list of notes, return the " +
		"indices of the most relevant notes. Respond ONLY in JSON format as " +
		"{\"indices\": [0, 3, 5]}. If none match, return {\"indices\": []}."
)

type OpenAIConfig struct {
	APIKey             string
	Model              string
	VisionModel        string
	TranscriptionModel string
	MaxTokens          int
	Temperature        float64
}

// OpenAIProvider backs every AI capability with OpenAI models and link
// metadata with a direct page fetch.
type OpenAIProvider struct {
	client      *openai.Client
	scraper     *Scraper
	model       string
	visionModel string
	sttModel    string
	maxTokens   int
	temperature float32
	maxTags     int
	logger      *zap.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, maxTags int, logger *zap.Logger) *OpenAIProvider {
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}
	sttModel := cfg.TranscriptionModel
	if sttModel == "" {
		sttModel = openai.Whisper1
	}

	return &OpenAIProvider{
		client:      openai.NewClient(cfg.APIKey),
		scraper:     NewScraper(nil),
		model:       cfg.Model,
		visionModel: visionModel,
		sttModel:    sttModel,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		maxTags:     maxTags,
		logger:      logger,
	}
}

func (p *OpenAIProvider) Summarize(ctx context.Context, content string) (string, error) {
	response, err := p.jsonCompletion(ctx, p.model, summarySystemPrompt,
		fmt.Sprintf("Generate a summary for:\n%s", clip(content, 4000)))
	if err != nil {
		return "", classify("summarize", err)
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		p.logger.Error("Failed to parse summary response",
			zap.Error(err),
			zap.String("response", response))
		return "", Permanent("summarize", fmt.Errorf("malformed model response: %w", err))
	}
	return strings.TrimSpace(parsed.Summary), nil
}

func (p *OpenAIProvider) ExtractLinkMetadata(ctx context.Context, url string) (*LinkMetadata, error) {
	return p.scraper.Extract(ctx, url)
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return "", InvalidInput("transcribe", fmt.Errorf("invalid base64 audio: %w", err))
	}
	if len(audio) == 0 {
		return "", InvalidInput("transcribe", errors.New("empty audio payload"))
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.sttModel,
		FilePath: "voice.mp3",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", classify("transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *OpenAIProvider) ExtractTextFromImage(ctx context.Context, imageBase64 string) (string, error) {
	if _, err := base64.StdEncoding.DecodeString(imageBase64); err != nil {
		return "", InvalidInput("ocr", fmt.Errorf("invalid base64 image: %w", err))
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: ocrSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Extract text and describe key content from this image.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + imageBase64,
						},
					},
				},
			},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", classify("ocr", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) Tag(ctx context.Context, content string) ([]string, error) {
	response, err := p.jsonCompletion(ctx, p.model, tagSystemPrompt,
		fmt.Sprintf("Generate tags for:\n%s", clip(content, 4000)))
	if err != nil {
		return nil, classify("tag", err)
	}

	var parsed struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		p.logger.Error("Failed to parse tag response",
			zap.Error(err),
			zap.String("response", response))
		return nil, Permanent("tag", fmt.Errorf("malformed model response: %w", err))
	}
	return NormalizeTags(parsed.Tags, p.maxTags), nil
}

func (p *OpenAIProvider) SemanticRank(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		lines = append(lines, fmt.Sprintf("%d: %s | %s | tags: %s",
			i, c.Title, c.Summary, strings.Join(c.Tags, ",")))
	}

	response, err := p.jsonCompletion(ctx, p.model, rankSystemPrompt,
		fmt.Sprintf("Query: %s\n\nNotes:\n%s", query, strings.Join(lines, "\n")))
	if err != nil {
		return nil, classify("semantic_rank", err)
	}

	var parsed struct {
		Indices []int `json:"indices"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		p.logger.Error("Failed to parse rank response",
			zap.Error(err),
			zap.String("response", response))
		return nil, Permanent("semantic_rank", fmt.Errorf("malformed model response: %w", err))
	}

	// Out-of-range indices are dropped so the model can never invent notes.
	ids := make([]string, 0, len(parsed.Indices))
	for _, idx := range parsed.Indices {
		if idx >= 0 && idx < len(candidates) {
			ids = append(ids, candidates[idx].ID)
		}
	}
	return ids, nil
}

func (p *OpenAIProvider) jsonCompletion(ctx context.Context, model, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps an OpenAI client error to the retry taxonomy: rate limits,
// server errors and timeouts retry; other API rejections do not.
func classify(op string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode == http.StatusRequestTimeout,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return Transient(op, err)
		default:
			return Permanent(op, err)
		}
	}

	// Network failures and context deadlines retry.
	return Transient(op, err)
}

// NormalizeTags lowercases, trims and deduplicates tags, dropping empties and
// capping the set at maxTags while preserving order.
func NormalizeTags(tags []string, maxTags int) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if maxTags > 0 && len(out) == maxTags {
			break
		}
	}
	return out
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
