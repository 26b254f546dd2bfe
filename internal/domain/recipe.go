// Package domain defines the core types and ports for the cooking
// companion. All other packages depend on domain; domain depends on
// nothing.
package domain

// Recipe is a fully structured recipe as served by the backend. The
// companion never mutates it.
type Recipe struct {
	ID          string
	Title       string
	Description string
	Servings    string
	Ingredients []Ingredient
	Steps       []Step
	Tags        []string

	// Optional narration bookends generated server-side.
	IntroText     string
	OutroText     string
	IntroAudioRef string
	OutroAudioRef string

	// Pre-rendered reading of the ingredient list, when the backend
	// generated one.
	IngredientsAudioRef string
}

// RecipeSummary is a lightweight view of a recipe for listing.
type RecipeSummary struct {
	ID          string
	Title       string
	Description string
	Tags        []string
}

// Ingredient keeps the backend's human-style quantity strings.
type Ingredient struct {
	Name   string
	Amount string
	Unit   string
	Notes  string
}

// Step is a single narrated instruction. Immutable; owned by the
// enclosing recipe and read-only to the session controller.
type Step struct {
	Index        int // 0-based position within the recipe
	Instruction  string
	DurationText string // e.g. "10 minutes", empty if untimed
	TipText      string // optional pro tip, spoken after the instruction
	AudioRef     string // pre-rendered narration clip, possibly relative
}
