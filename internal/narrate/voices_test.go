package narrate

import (
	"testing"

	"github.com/foodly/companion/internal/domain"
)

func TestPreferVoice(t *testing.T) {
	catalog := []domain.Voice{
		{ID: "en-GB-SoniaNeural", Name: "Sonia", Locale: "en-GB"},
		{ID: "en-US-JennyNeural", Name: "Jenny", Locale: "en-US"},
		{ID: "en-US-ChristopherNeural", Name: "Christopher", Locale: "en-US"},
	}

	tests := []struct {
		name      string
		voices    []domain.Voice
		locale    string
		preferred []string
		want      string
	}{
		{
			name:      "explicit ID wins over locale",
			voices:    catalog,
			locale:    "en-GB",
			preferred: []string{"en-US-ChristopherNeural"},
			want:      "en-US-ChristopherNeural",
		},
		{
			name:      "voice name matches case-insensitively",
			voices:    catalog,
			locale:    "en-US",
			preferred: []string{"jenny"},
			want:      "en-US-JennyNeural",
		},
		{
			name:      "preference order decides among matches",
			voices:    catalog,
			locale:    "",
			preferred: []string{"nobody", "Sonia", "Jenny"},
			want:      "en-GB-SoniaNeural",
		},
		{
			name:      "unknown preference falls back to locale",
			voices:    catalog,
			locale:    "en-US",
			preferred: []string{"hal-9000"},
			want:      "en-US-JennyNeural",
		},
		{
			name:   "locale compares by language only",
			voices: catalog,
			locale: "en",
			want:   "en-GB-SoniaNeural",
		},
		{
			name:   "no match falls back to catalog head",
			voices: catalog,
			locale: "fr-FR",
			want:   "en-GB-SoniaNeural",
		},
		{
			name:      "empty catalog yields empty",
			voices:    nil,
			locale:    "en-US",
			preferred: []string{"Jenny"},
			want:      "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PreferVoice(tc.voices, tc.locale, tc.preferred...)
			if got != tc.want {
				t.Fatalf("PreferVoice() = %q, want %q", got, tc.want)
			}
		})
	}
}
