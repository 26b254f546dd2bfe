// Package recipe provides recipe source implementations: a built-in
// in-memory source for offline use and an HTTP client for the backend.
package recipe

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// Compile-time interface check.
var _ domain.RecipeSource = (*MemorySource)(nil)

// MemorySource holds recipes in memory. Safe for concurrent reads.
// Used when no backend is configured; its recipes carry no audio refs,
// so narration runs entirely on synthesis.
type MemorySource struct {
	mu      sync.RWMutex
	recipes map[string]*domain.Recipe
	log     *logger.Logger
}

// NewMemorySource creates a recipe source preloaded with built-in recipes.
func NewMemorySource(log *logger.Logger) *MemorySource {
	src := &MemorySource{
		recipes: make(map[string]*domain.Recipe),
		log:     log,
	}
	src.seed()
	return src
}

// List returns summaries of all available recipes.
func (s *MemorySource) List(ctx context.Context) ([]domain.RecipeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.log.Debug("recipe: listing all, count=%d", len(s.recipes))

	out := make([]domain.RecipeSummary, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, summaryOf(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// Get returns a recipe by ID.
func (s *MemorySource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		s.log.Debug("recipe: not found: %s", id)
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// Search returns recipes whose title, description, or tags contain the
// query string.
func (s *MemorySource) Search(ctx context.Context, query string) ([]domain.RecipeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []domain.RecipeSummary
	for _, r := range s.recipes {
		if s.matches(r, q) {
			out = append(out, summaryOf(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *MemorySource) matches(r *domain.Recipe, query string) bool {
	if strings.Contains(strings.ToLower(r.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(r.Description), query) {
		return true
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func summaryOf(r *domain.Recipe) domain.RecipeSummary {
	return domain.RecipeSummary{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Tags:        r.Tags,
	}
}

// seed populates the source with built-in recipes.
func (s *MemorySource) seed() {
	recipes := []*domain.Recipe{
		s.garlicButterSalmon(),
		s.vegetableStirFry(),
	}
	for _, r := range recipes {
		s.recipes[r.ID] = r
	}
	s.log.Debug("recipe: seeded %d built-ins", len(recipes))
}

func (s *MemorySource) garlicButterSalmon() *domain.Recipe {
	return &domain.Recipe{
		ID:          "garlic-butter-salmon",
		Title:       "Garlic Butter Salmon",
		Description: "Pan-seared salmon basted in garlic butter. Crispy skin, tender center, one pan.",
		Servings:    "2",
		Tags:        []string{"fish", "quick", "weeknight"},
		IntroText:   "Welcome to Garlic Butter Salmon. Two servings, one pan, about twenty minutes. Let's get cooking.",
		OutroText:   "That's it. Plate the salmon, spoon over the garlic butter, and enjoy your meal.",
		Ingredients: []domain.Ingredient{
			{Name: "salmon fillets", Amount: "2", Unit: "pieces", Notes: "skin on, about 170 grams each"},
			{Name: "butter", Amount: "3", Unit: "tablespoons"},
			{Name: "garlic", Amount: "4", Unit: "cloves", Notes: "thinly sliced"},
			{Name: "lemon", Amount: "1", Unit: "piece"},
			{Name: "olive oil", Amount: "1", Unit: "tablespoon"},
			{Name: "salt", Notes: "to taste"},
			{Name: "black pepper", Notes: "to taste"},
		},
		Steps: []domain.Step{
			{
				Index:       0,
				Instruction: "Pat the salmon fillets dry with paper towels and season both sides generously with salt and pepper. Dry skin is the whole secret to crispy skin.",
			},
			{
				Index:        1,
				Instruction:  "Heat the olive oil in a heavy skillet over medium-high heat until it shimmers. Lay the fillets in skin side down and press gently for the first few seconds so the skin stays flat",
				DurationText: "1 minute",
			},
			{
				Index:        2,
				Instruction:  "Cook without moving the fillets until the skin releases easily and the sides have turned opaque most of the way up.",
				DurationText: "5 minutes",
				TipText:      "If the skin sticks, it is not ready. Give it another thirty seconds and try again.",
			},
			{
				Index:        3,
				Instruction:  "Flip the fillets, drop the heat to medium, and add the butter and garlic. Tilt the pan and spoon the foaming butter over the fish repeatedly.",
				DurationText: "3 minutes",
				TipText:      "Pull the pan off the heat if the garlic starts browning fast. Burnt garlic turns the butter bitter.",
			},
			{
				Index:       4,
				Instruction: "Squeeze half the lemon over the fillets, let everything rest in the warm pan for a minute, and serve with the pan butter spooned on top.",
			},
		},
	}
}

func (s *MemorySource) vegetableStirFry() *domain.Recipe {
	return &domain.Recipe{
		ID:          "vegetable-stir-fry",
		Title:       "Vegetable Stir Fry",
		Description: "Fast, crunchy, and customizable. The key is a screaming hot pan and not overcrowding it.",
		Servings:    "2",
		Tags:        []string{"vegetables", "quick", "vegan"},
		IntroText:   "Welcome to Vegetable Stir Fry. Everything happens fast once the pan is hot, so we'll prep first.",
		OutroText:   "Done. Serve it right away, stir fry does not get better sitting around.",
		Ingredients: []domain.Ingredient{
			{Name: "bell pepper", Amount: "1", Unit: "piece", Notes: "large"},
			{Name: "broccoli florets", Amount: "2", Unit: "cups"},
			{Name: "carrot", Amount: "1", Unit: "piece"},
			{Name: "snap peas", Amount: "1", Unit: "cup"},
			{Name: "garlic", Amount: "3", Unit: "cloves"},
			{Name: "fresh ginger", Amount: "1", Unit: "tablespoon", Notes: "grated"},
			{Name: "soy sauce", Amount: "2", Unit: "tablespoons"},
			{Name: "sesame oil", Amount: "1", Unit: "tablespoon"},
			{Name: "vegetable oil", Amount: "2", Unit: "tablespoons"},
			{Name: "cornstarch", Amount: "1", Unit: "teaspoon", Notes: "optional"},
		},
		Steps: []domain.Step{
			{
				Index:       0,
				Instruction: "Prep all vegetables: slice the bell pepper into strips, cut broccoli into small florets, julienne the carrot, trim the snap peas. Mince the garlic and grate the ginger. Everything cut before the pan goes on.",
			},
			{
				Index:       1,
				Instruction: "Mix the sauce: soy sauce, sesame oil, and cornstarch if using, with two tablespoons of water. Set it within reach.",
			},
			{
				Index:       2,
				Instruction: "Heat your wok or largest pan on high until it just starts to smoke. Add the vegetable oil and swirl to coat.",
			},
			{
				Index:        3,
				Instruction:  "Add broccoli and carrots first, they take longest. Stir-fry for two minutes, then add the bell pepper and snap peas for two more.",
				DurationText: "4 minutes",
				TipText:      "Do not stir constantly. Let things sit and pick up some char.",
			},
			{
				Index:        4,
				Instruction:  "Push the vegetables to the side, add the garlic and ginger to the center until fragrant, then toss everything together.",
				DurationText: "30 seconds",
			},
			{
				Index:       5,
				Instruction: "Pour the sauce over everything and toss to coat. Thirty more seconds until it thickens slightly, then serve immediately.",
			},
		},
	}
}
