// Package ghost talks to a Ghost blog: the content API is the source of
// curated recipes and the admin API publishes generated ones as drafts.
package ghost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"

	"github.com/neej1979/mealplanner/internal/config"
	"github.com/neej1979/mealplanner/internal/recipe"
)

const (
	contentPostsPath = "/ghost/api/v3/content/posts/"
	adminPostsPath   = "/ghost/api/v3/admin/posts/"
	adminAudience    = "/v3/admin/"
	adminTokenTTL    = 5 * time.Minute
)

// Post represents a Ghost post holding one recipe.
type Post struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	HTML      string `json:"html"`
	URL       string `json:"url"`
	Status    string `json:"status,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// PostsResponse is the envelope both Ghost APIs answer with.
type PostsResponse struct {
	Posts []Post `json:"posts"`
}

// Source returns the post as extractor input, with the HTML reduced to text.
func (p Post) Source() (recipe.Source, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return recipe.Source{}, fmt.Errorf("failed to parse post html: %w", err)
	}
	id := p.Slug
	if id == "" {
		id = recipe.Slugify(p.Title)
	}
	return recipe.Source{
		ID:      id,
		Title:   p.Title,
		Content: strings.Join(strings.Fields(doc.Text()), " "),
		URL:     p.URL,
	}, nil
}

// APIError is a non-2xx answer from Ghost.
type APIError struct {
	API        string
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ghost %s api error: status %d", e.API, e.StatusCode)
	if len(e.Messages) > 0 {
		msg += ": " + strings.Join(e.Messages, "; ")
	}
	return msg
}

// Client reads recipe posts and publishes new ones.
type Client interface {
	FetchRecipes(ctx context.Context) ([]Post, error)
	CreatePost(ctx context.Context, title, html string, publish bool) (*Post, error)
}

type ghostClient struct {
	httpClient *http.Client
	config     *config.Config
	now        func() time.Time
}

// NewClient creates a Ghost client from the GHOST_* settings.
func NewClient(cfg *config.Config) Client {
	return &ghostClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
		now:        time.Now,
	}
}

func (c *ghostClient) endpoint(path string, q url.Values) string {
	u := strings.TrimRight(c.config.GhostURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// FetchRecipes fetches every post tagged "recipe" from the Content API.
func (c *ghostClient) FetchRecipes(ctx context.Context) ([]Post, error) {
	q := url.Values{
		"key":     {c.config.GhostContentKey},
		"limit":   {"all"},
		"filter":  {"tag:recipe"},
		"formats": {"html"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(contentPostsPath, q), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out PostsResponse
	if err := c.do(req, "content", &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

type postInput struct {
	Title  string   `json:"title"`
	HTML   string   `json:"html"`
	Status string   `json:"status"`
	Tags   []string `json:"tags"`
}

// CreatePost publishes html through the Admin API, or stores it as a draft
// when publish is false.
func (c *ghostClient) CreatePost(ctx context.Context, title, html string, publish bool) (*Post, error) {
	token, err := c.createAdminToken()
	if err != nil {
		return nil, fmt.Errorf("failed to create admin token: %w", err)
	}

	in := postInput{Title: title, HTML: html, Status: "draft", Tags: []string{"recipe", "generated"}}
	if publish {
		in.Status = "published"
	}
	body, err := json.Marshal(struct {
		Posts []postInput `json:"posts"`
	}{Posts: []postInput{in}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}

	q := url.Values{"source": {"html"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(adminPostsPath, q), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Ghost "+token)
	req.Header.Set("Content-Type", "application/json")

	var out PostsResponse
	if err := c.do(req, "admin", &out); err != nil {
		return nil, err
	}
	if len(out.Posts) == 0 {
		return nil, fmt.Errorf("no post returned from api")
	}
	return &out.Posts[0], nil
}

// do sends req and decodes a 2xx body into out.
func (c *ghostClient) do(req *http.Request, api string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{API: api, StatusCode: resp.StatusCode}
		var payload struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(raw, &payload) == nil {
			for _, e := range payload.Errors {
				apiErr.Messages = append(apiErr.Messages, e.Message)
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// createAdminToken signs the short-lived JWT the Admin API expects. The
// admin key has the form "<id>:<hex secret>".
func (c *ghostClient) createAdminToken() (string, error) {
	id, secretHex, ok := strings.Cut(c.config.GhostAdminKey, ":")
	if !ok || id == "" || strings.Contains(secretHex, ":") {
		return "", fmt.Errorf("invalid admin key format: expected id:secret")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		Audience:  jwt.ClaimStrings{adminAudience},
	})
	token.Header["kid"] = id
	return token.SignedString(secret)
}
