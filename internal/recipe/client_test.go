package recipe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

func testBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/recipes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"recipes": [
				{"id": "abc-123", "title": "Shakshuka", "description": "Eggs in tomato sauce.", "tags": ["breakfast"]}
			],
			"total": 1
		}`))
	})
	mux.HandleFunc("/api/recipes/abc-123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "abc-123",
			"title": "Shakshuka",
			"description": "Eggs in tomato sauce.",
			"servings": "2",
			"ingredients": [
				{"name": "eggs", "amount": "4", "unit": "pieces"},
				{"name": "crushed tomatoes", "amount": "400", "unit": "grams", "notes": "one can"}
			],
			"steps": [
				{"number": 1, "instruction": "Soften the onion and pepper.", "duration": "5 minutes", "audio_url": "/static/audio/abc-123_step_1.mp3"},
				{"number": 2, "instruction": "Add tomatoes and simmer.", "tips": "Season the sauce before the eggs go in.", "audio_url": "/static/audio/abc-123_step_2.mp3"}
			],
			"tags": ["breakfast"],
			"intro_text": "Welcome to Shakshuka.",
			"intro_audio_url": "/static/audio/abc-123_intro.mp3",
				"ingredients_audio_url": "/static/audio/abc-123_ingredients.mp3"
		}`))
	})
	mux.HandleFunc("/api/recipes/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "shak" {
			w.Write([]byte(`{"recipes": [{"id": "abc-123", "title": "Shakshuka"}], "total": 1}`))
			return
		}
		w.Write([]byte(`{"recipes": [], "total": 0}`))
	})
	mux.HandleFunc("/api/voices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"voices": [
				{"id": "en-US-ChristopherNeural", "name": "Christopher", "locale": "en-US", "gender": "male", "description": "Warm and friendly"}
			]
		}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientList(t *testing.T) {
	srv := testBackend(t)
	c := NewClient(srv.URL, logger.New(logger.LevelOff, nil))

	recipes, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recipes) != 1 || recipes[0].Title != "Shakshuka" {
		t.Fatalf("unexpected list: %+v", recipes)
	}
}

func TestClientGetMapsWireFields(t *testing.T) {
	srv := testBackend(t)
	c := NewClient(srv.URL, logger.New(logger.LevelOff, nil))

	r, err := c.Get(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Title != "Shakshuka" || r.IntroText != "Welcome to Shakshuka." {
		t.Fatalf("recipe = %+v", r)
	}
	if r.IntroAudioRef != "/static/audio/abc-123_intro.mp3" {
		t.Fatalf("intro ref = %q", r.IntroAudioRef)
	}
	if r.IngredientsAudioRef != "/static/audio/abc-123_ingredients.mp3" {
		t.Fatalf("ingredients ref = %q", r.IngredientsAudioRef)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("got %d steps", len(r.Steps))
	}
	// Backend step numbers are 1-based; the cursor is 0-based.
	if r.Steps[0].Index != 0 || r.Steps[1].Index != 1 {
		t.Fatalf("step indexes = %d, %d", r.Steps[0].Index, r.Steps[1].Index)
	}
	if r.Steps[0].DurationText != "5 minutes" {
		t.Fatalf("duration = %q", r.Steps[0].DurationText)
	}
	if r.Steps[1].TipText != "Season the sauce before the eggs go in." {
		t.Fatalf("tip = %q", r.Steps[1].TipText)
	}
	if r.Steps[0].AudioRef != "/static/audio/abc-123_step_1.mp3" {
		t.Fatalf("audio ref = %q", r.Steps[0].AudioRef)
	}
}

func TestClientGetNotFound(t *testing.T) {
	srv := testBackend(t)
	c := NewClient(srv.URL, logger.New(logger.LevelOff, nil))

	_, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClientSearch(t *testing.T) {
	srv := testBackend(t)
	c := NewClient(srv.URL, logger.New(logger.LevelOff, nil))

	hits, err := c.Search(context.Background(), "shak")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "abc-123" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	none, err := c.Search(context.Background(), "zzz")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no hits, got %+v", none)
	}
}

func TestClientVoices(t *testing.T) {
	srv := testBackend(t)
	c := NewClient(srv.URL, logger.New(logger.LevelOff, nil))

	voices, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "en-US-ChristopherNeural" {
		t.Fatalf("unexpected voices: %+v", voices)
	}
}
