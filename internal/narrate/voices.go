package narrate

import (
	"strings"

	"github.com/foodly/companion/internal/domain"
)

// DefaultVoiceCatalog mirrors the backend's voice catalog. Used when
// the /api/voices endpoint is unreachable.
var DefaultVoiceCatalog = []domain.Voice{
	{
		ID:          "en-US-ChristopherNeural",
		Name:        "Christopher",
		Locale:      "en-US",
		Gender:      "Male",
		Description: "Warm and encouraging — great for calm, guided cooking.",
	},
	{
		ID:          "en-US-JennyNeural",
		Name:        "Jenny",
		Locale:      "en-US",
		Gender:      "Female",
		Description: "Friendly and upbeat with crisp pronunciation.",
	},
	{
		ID:          "en-GB-SoniaNeural",
		Name:        "Sonia",
		Locale:      "en-GB",
		Gender:      "Female",
		Description: "Relaxed British tone, ideal for narrated stories.",
	},
	{
		ID:          "en-AU-NatashaNeural",
		Name:        "Natasha",
		Locale:      "en-AU",
		Gender:      "Female",
		Description: "Bright Australian lilt with a friendly tempo.",
	},
}

// PreferVoice picks a voice from the catalog: an explicit preference
// first (by ID or name), then any voice matching the session locale,
// then the catalog default. A preference list is a heuristic, not a
// hard requirement — an empty result only happens on an empty catalog.
func PreferVoice(voices []domain.Voice, locale string, preferred ...string) string {
	for _, want := range preferred {
		for _, v := range voices {
			if v.ID == want || strings.EqualFold(v.Name, want) {
				return v.ID
			}
		}
	}
	if locale != "" {
		lang := strings.ToLower(strings.SplitN(locale, "-", 2)[0])
		for _, v := range voices {
			if strings.HasPrefix(strings.ToLower(v.Locale), lang) {
				return v.ID
			}
		}
	}
	if len(voices) > 0 {
		return voices[0].ID
	}
	return ""
}
