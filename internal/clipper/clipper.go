// Package clipper imports a recipe from an arbitrary web page.
package clipper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shared"
)

// maxContentChars caps the page text sent to the LLM.
const maxContentChars = 12000

// Extractor turns page text into a recipe.
type Extractor interface {
	Extract(ctx context.Context, src recipe.Source) (recipe.Recipe, shared.AgentMeta, error)
}

// Clipper handles fetching and extracting recipes from URLs.
type Clipper struct {
	extractor  Extractor
	httpClient *http.Client
}

// NewClipper creates a new Clipper instance.
func NewClipper(extractor Extractor) *Clipper {
	return &Clipper{
		extractor:  extractor,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ClipURL fetches the page and extracts a curated recipe from it.
func (c *Clipper) ClipURL(ctx context.Context, url string) (recipe.Recipe, shared.AgentMeta, error) {
	title, content, err := c.fetchAndCleanHTML(ctx, url)
	if err != nil {
		return recipe.Recipe{}, shared.AgentMeta{}, fmt.Errorf("failed to fetch content: %w", err)
	}
	if content == "" {
		return recipe.Recipe{}, shared.AgentMeta{}, fmt.Errorf("no text content found at %s", url)
	}

	rec, meta, err := c.extractor.Extract(ctx, recipe.Source{Title: title, Content: content, URL: url})
	if err != nil {
		return recipe.Recipe{}, meta, fmt.Errorf("failed to extract recipe: %w", err)
	}
	return rec, meta, nil
}

func (c *Clipper) fetchAndCleanHTML(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", err
	}

	// Remove noise to save LLM tokens
	doc.Find("script, style, nav, footer, iframe, ads, .ads, #ads, .comments, form").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > maxContentChars {
		text = text[:maxContentChars]
	}
	return title, text, nil
}
