package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// ClientOption configures the backend client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Compile-time interface check.
var _ domain.RecipeSource = (*Client)(nil)

// Client is the HTTP recipe source backed by the Foodly backend. It
// also exposes the backend's voice catalog for the synthesizer.
type Client struct {
	origin     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a client for the backend at origin.
func NewClient(origin string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		origin:     strings.TrimRight(origin, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── wire types ───────────────────────────────────────────────────

type ingredientDTO struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Notes  string `json:"notes"`
}

type stepDTO struct {
	Number      int    `json:"number"`
	Instruction string `json:"instruction"`
	Duration    string `json:"duration"`
	Tips        string `json:"tips"`
	AudioURL    string `json:"audio_url"`
}

type recipeDTO struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Servings      string          `json:"servings"`
	Ingredients   []ingredientDTO `json:"ingredients"`
	Steps         []stepDTO       `json:"steps"`
	Tags          []string        `json:"tags"`
	IntroText     string          `json:"intro_text"`
	OutroText     string          `json:"outro_text"`
	IntroAudioURL string          `json:"intro_audio_url"`
	OutroAudioURL string          `json:"outro_audio_url"`

	IngredientsAudioURL string `json:"ingredients_audio_url"`
}

type recipeListDTO struct {
	Recipes []recipeDTO `json:"recipes"`
	Total   int         `json:"total"`
}

type voiceDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Locale      string `json:"locale"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

type voiceListDTO struct {
	Voices []voiceDTO `json:"voices"`
}

// ── operations ───────────────────────────────────────────────────

// List returns summaries of the saved recipes.
func (c *Client) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	var list recipeListDTO
	if err := c.getJSON(ctx, "/api/recipes", &list); err != nil {
		return nil, err
	}
	c.log.Debug("recipe: backend listed %d of %d", len(list.Recipes), list.Total)

	out := make([]domain.RecipeSummary, 0, len(list.Recipes))
	for _, r := range list.Recipes {
		out = append(out, domain.RecipeSummary{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Tags:        r.Tags,
		})
	}
	return out, nil
}

// Get returns a recipe by ID. Returns domain.ErrNotFound on a 404.
func (c *Client) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	var dto recipeDTO
	if err := c.getJSON(ctx, "/api/recipes/"+url.PathEscape(id), &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// Search returns recipes whose title or description match the query.
func (c *Client) Search(ctx context.Context, query string) ([]domain.RecipeSummary, error) {
	var list recipeListDTO
	path := "/api/recipes/search?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}
	out := make([]domain.RecipeSummary, 0, len(list.Recipes))
	for _, r := range list.Recipes {
		out = append(out, domain.RecipeSummary{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Tags:        r.Tags,
		})
	}
	return out, nil
}

// Voices returns the backend's synthesis voice catalog.
func (c *Client) Voices(ctx context.Context) ([]domain.Voice, error) {
	var list voiceListDTO
	if err := c.getJSON(ctx, "/api/voices", &list); err != nil {
		return nil, err
	}
	out := make([]domain.Voice, 0, len(list.Voices))
	for _, v := range list.Voices {
		out = append(out, domain.Voice{
			ID:          v.ID,
			Name:        v.Name,
			Locale:      v.Locale,
			Gender:      v.Gender,
			Description: v.Description,
		})
	}
	return out, nil
}

func (dto *recipeDTO) toDomain() *domain.Recipe {
	r := &domain.Recipe{
		ID:            dto.ID,
		Title:         dto.Title,
		Description:   dto.Description,
		Servings:      dto.Servings,
		Tags:          dto.Tags,
		IntroText:     dto.IntroText,
		OutroText:     dto.OutroText,
		IntroAudioRef: dto.IntroAudioURL,
		OutroAudioRef: dto.OutroAudioURL,

		IngredientsAudioRef: dto.IngredientsAudioURL,
	}
	for _, ing := range dto.Ingredients {
		r.Ingredients = append(r.Ingredients, domain.Ingredient{
			Name:   ing.Name,
			Amount: ing.Amount,
			Unit:   ing.Unit,
			Notes:  ing.Notes,
		})
	}
	// The backend numbers steps from 1; the cursor indexes from 0.
	for i, st := range dto.Steps {
		idx := st.Number - 1
		if idx < 0 {
			idx = i
		}
		r.Steps = append(r.Steps, domain.Step{
			Index:        idx,
			Instruction:  st.Instruction,
			DurationText: st.Duration,
			TipText:      st.Tips,
			AudioRef:     st.AudioURL,
		})
	}
	return r
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.origin+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("backend returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
