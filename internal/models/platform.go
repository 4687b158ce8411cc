package models

import "strings"

// DetectPlatform classifies a link URL by its hosting platform. Unknown hosts
// classify as "web"; an empty URL yields an empty classification.
func DetectPlatform(url string) string {
	if url == "" {
		return ""
	}

	lower := strings.ToLower(url)
	platforms := []struct {
		name  string
		hosts []string
	}{
		{"youtube", []string{"youtube.com", "youtu.be"}},
		{"instagram", []string{"instagram.com"}},
		{"twitter", []string{"twitter.com", "x.com"}},
		{"tiktok", []string{"tiktok.com"}},
		{"reddit", []string{"reddit.com"}},
		{"linkedin", []string{"linkedin.com"}},
		{"github", []string{"github.com"}},
		{"medium", []string{"medium.com"}},
	}

	for _, p := range platforms {
		for _, host := range p.hosts {
			if strings.Contains(lower, host) {
				return p.name
			}
		}
	}
	return "web"
}
