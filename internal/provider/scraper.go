package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const scraperUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Scraper recovers open-graph metadata from a page for link enrichment.
type Scraper struct {
	client *http.Client
}

func NewScraper(client *http.Client) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Scraper{client: client}
}

func (s *Scraper) Extract(ctx context.Context, url string) (*LinkMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, InvalidInput("scrape", fmt.Errorf("invalid URL: %w", err))
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Transient("scrape", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, Transient("scrape", fmt.Errorf("unexpected status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, Permanent("scrape", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Permanent("scrape", fmt.Errorf("parsing page: %w", err))
	}

	meta := &LinkMetadata{}

	if content, ok := metaProperty(doc, "og:title"); ok {
		meta.Title = content
	} else {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if content, ok := metaProperty(doc, "og:description"); ok {
		meta.Description = content
	} else if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		meta.Description = strings.TrimSpace(content)
	}

	if content, ok := metaProperty(doc, "og:image"); ok {
		meta.Thumbnail = content
	}

	meta.Title = clip(meta.Title, 200)
	meta.Description = clip(meta.Description, 500)
	return meta, nil
}

func metaProperty(doc *goquery.Document, property string) (string, bool) {
	content, ok := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	content = strings.TrimSpace(content)
	return content, ok && content != ""
}
