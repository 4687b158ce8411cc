package provider

import (
	"strings"
)

// KeywordTagger is a local fallback used when the model returns no tags:
// it extracts hashtags and matches a small keyword-to-topic table.
type KeywordTagger struct {
	maxTags int
}

func NewKeywordTagger(maxTags int) *KeywordTagger {
	return &KeywordTagger{maxTags: maxTags}
}

var topicKeywords = map[string][]string{
	"work":      {"project", "meeting", "deadline", "task", "report"},
	"personal":  {"family", "friend", "home", "birthday", "holiday"},
	"shopping":  {"buy", "purchase", "store", "shop", "price"},
	"education": {"study", "learn", "course", "book", "homework"},
	"travel":    {"trip", "flight", "hotel", "vacation", "booking"},
}

func (t *KeywordTagger) Tag(content string) []string {
	var tags []string

	// Explicit hashtags first, in order of appearance
	for _, word := range strings.Fields(content) {
		if strings.HasPrefix(word, "#") {
			if tag := strings.ToLower(strings.TrimPrefix(word, "#")); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	lower := strings.ToLower(content)
	for topic, keywords := range topicKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				tags = append(tags, topic)
				break
			}
		}
	}

	return NormalizeTags(tags, t.maxTags)
}
