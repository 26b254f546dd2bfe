package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

type narration struct {
	text     string
	ref      string
	complete func()
}

// fakeNarrator records speaks; tests trigger completion manually.
type fakeNarrator struct {
	mu        sync.Mutex
	supported bool
	speaks    []narration
	stops     int
}

func (f *fakeNarrator) Speak(text, audioRef string, onComplete func()) {
	f.mu.Lock()
	f.speaks = append(f.speaks, narration{text, audioRef, onComplete})
	f.mu.Unlock()
}

func (f *fakeNarrator) Stop()           { f.mu.Lock(); f.stops++; f.mu.Unlock() }
func (f *fakeNarrator) Supported() bool { return f.supported }

func (f *fakeNarrator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.speaks)
}

func (f *fakeNarrator) last(t *testing.T) narration {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.speaks) == 0 {
		t.Fatal("nothing was narrated")
	}
	return f.speaks[len(f.speaks)-1]
}

// completeLast fires the most recent narration's completion, the way
// the player does on natural end.
func (f *fakeNarrator) completeLast(t *testing.T) {
	t.Helper()
	if n := f.last(t); n.complete != nil {
		n.complete()
	}
}

type fakePrefs struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakePrefs() *fakePrefs { return &fakePrefs{m: make(map[string]string)} }

func (p *fakePrefs) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok
}

func (p *fakePrefs) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return nil
}

func twoStepRecipe() *domain.Recipe {
	return &domain.Recipe{
		ID:    "r1",
		Title: "Test Pasta",
		Steps: []domain.Step{
			{Index: 0, Instruction: "Boil the water", DurationText: "10 minutes"},
			{Index: 1, Instruction: "Add the pasta.", TipText: "Salt the water generously."},
		},
	}
}

func setup(t *testing.T, recipe *domain.Recipe) (*Controller, *fakeNarrator, *fakePrefs) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	narr := &fakeNarrator{supported: true}
	prefs := newFakePrefs()
	c, err := NewController(recipe, narr, prefs, log, WithAdvancePause(5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, narr, prefs
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewControllerRejectsEmptyRecipe(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	_, err := NewController(&domain.Recipe{}, &fakeNarrator{}, nil, log)
	if !errors.Is(err, domain.ErrNoSteps) {
		t.Fatalf("err = %v, want ErrNoSteps", err)
	}
}

func TestNavigationClampsAtBoundaries(t *testing.T) {
	c, _, _ := setup(t, twoStepRecipe())

	c.Prev()
	if got := c.Cursor().CurrentStepIndex; got != 0 {
		t.Fatalf("Prev at step 0 moved to %d", got)
	}

	c.Next()
	c.Next()
	c.Next()
	if got := c.Cursor().CurrentStepIndex; got != 1 {
		t.Fatalf("Next past the last step moved to %d", got)
	}
}

func TestNavigationStopsNarrationAndNeverStartsIt(t *testing.T) {
	c, narr, _ := setup(t, twoStepRecipe())

	c.Play()
	if narr.count() != 1 {
		t.Fatalf("Play narrated %d times, want 1", narr.count())
	}
	stale := narr.last(t)

	c.Next()
	narr.mu.Lock()
	stops := narr.stops
	narr.mu.Unlock()
	if stops < 2 { // one from Play's fresh start, one from Next
		t.Fatalf("narration stopped %d times, want >= 2", stops)
	}
	if narr.count() != 1 {
		t.Fatal("navigation must not start narration")
	}

	// The superseded step's completion arrives late; it must not
	// trigger an advance.
	stale.complete()
	time.Sleep(20 * time.Millisecond)
	if got := c.Cursor().CurrentStepIndex; got != 1 {
		t.Fatalf("stale completion moved cursor to %d", got)
	}
}

func TestPlayAutoAdvancesThroughSteps(t *testing.T) {
	c, narr, _ := setup(t, twoStepRecipe())

	c.Play()
	first := narr.last(t)
	if !strings.Contains(first.text, "Boil the water.") {
		t.Fatalf("narrated %q, want the first instruction", first.text)
	}
	if !strings.Contains(first.text, "This should take about 10 minutes.") {
		t.Fatalf("narrated %q, want the duration clause", first.text)
	}

	narr.completeLast(t)
	waitFor(t, func() bool { return c.Cursor().CurrentStepIndex == 1 },
		"cursor never advanced after the pause")
	waitFor(t, func() bool { return narr.count() == 2 },
		"second step was never narrated")

	second := narr.last(t)
	if !strings.Contains(second.text, "Pro tip: Salt the water generously.") {
		t.Fatalf("narrated %q, want the tip clause", second.text)
	}

	// Completing the last step exits auto-play.
	narr.completeLast(t)
	waitFor(t, func() bool { return !c.Cursor().IsAutoPlaying },
		"auto-play never exited after the last step")
	if got := c.Cursor().CurrentStepIndex; got != 1 {
		t.Fatalf("cursor = %d after the last step, want 1", got)
	}
}

func TestStopDuringAdvancePauseStaysPut(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	narr := &fakeNarrator{supported: true}
	c, err := NewController(twoStepRecipe(), narr, nil, log, WithAdvancePause(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	c.Play()
	narr.completeLast(t)
	c.Stop() // inside the pause

	time.Sleep(150 * time.Millisecond)
	cur := c.Cursor()
	if cur.CurrentStepIndex != 0 {
		t.Fatalf("cursor = %d after Stop during the pause, want 0", cur.CurrentStepIndex)
	}
	if cur.IsAutoPlaying {
		t.Fatal("Stop must exit auto-play")
	}
	if narr.count() != 1 {
		t.Fatalf("narrated %d times, want 1 (no second step)", narr.count())
	}
}

func TestAutoAdvanceOffDuringNarrationExitsAutoPlay(t *testing.T) {
	c, narr, _ := setup(t, twoStepRecipe())

	c.Play()
	c.SetAutoAdvance(false) // mid-narration; must not stop the current speak

	narr.mu.Lock()
	stops := narr.stops
	narr.mu.Unlock()
	if stops != 1 { // only Play's own fresh-start stop
		t.Fatalf("narration stopped %d times, want 1", stops)
	}

	narr.completeLast(t)
	waitFor(t, func() bool { return !c.Cursor().IsAutoPlaying },
		"auto-play never exited after completion")
	time.Sleep(20 * time.Millisecond)
	if got := c.Cursor().CurrentStepIndex; got != 0 {
		t.Fatalf("cursor advanced to %d with auto-advance off", got)
	}
}

func TestRepeatKeepsStateAndRenarrates(t *testing.T) {
	c, narr, _ := setup(t, twoStepRecipe())

	c.Repeat()
	if narr.count() != 1 {
		t.Fatalf("Repeat narrated %d times, want 1", narr.count())
	}
	cur := c.Cursor()
	if cur.IsAutoPlaying || cur.CurrentStepIndex != 0 {
		t.Fatalf("Repeat changed state: %+v", cur)
	}

	// Outside auto-play, completion is inert.
	narr.completeLast(t)
	time.Sleep(20 * time.Millisecond)
	if got := c.Cursor().CurrentStepIndex; got != 0 {
		t.Fatalf("completion after Repeat moved cursor to %d", got)
	}
}

func TestToggleCompleteIsIndependentOfNavigation(t *testing.T) {
	c, _, _ := setup(t, twoStepRecipe())

	c.ToggleComplete(1)
	if !c.Cursor().CompletedSteps[1] {
		t.Fatal("step 1 should be complete")
	}
	c.ToggleComplete(1)
	if c.Cursor().CompletedSteps[1] {
		t.Fatal("toggle should unmark step 1")
	}
	c.ToggleComplete(99) // ignored
	if len(c.Cursor().CompletedSteps) != 0 {
		t.Fatal("out-of-range toggle must be ignored")
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	c, narr, _ := setup(t, twoStepRecipe())

	c.Next()
	c.ToggleComplete(0)
	c.Play()
	c.Reset()

	cur := c.Cursor()
	if cur.CurrentStepIndex != 0 || len(cur.CompletedSteps) != 0 || cur.IsAutoPlaying {
		t.Fatalf("cursor after Reset = %+v", cur)
	}
	narr.mu.Lock()
	stops := narr.stops
	narr.mu.Unlock()
	if stops == 0 {
		t.Fatal("Reset must stop narration")
	}
}

func TestAutoAdvancePreferencePersists(t *testing.T) {
	c, _, prefs := setup(t, twoStepRecipe())

	c.SetAutoAdvance(false)
	if v, _ := prefs.Get("autoAdvanceEnabled"); v != "false" {
		t.Fatalf("persisted value = %q, want \"false\"", v)
	}

	log := logger.New(logger.LevelOff, nil)
	c2, err := NewController(twoStepRecipe(), &fakeNarrator{supported: true}, prefs, log)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if c2.Cursor().AutoAdvanceEnabled {
		t.Fatal("preference was not read back at construction")
	}
}

func TestIntroSpokenOnFirstPlayOnly(t *testing.T) {
	recipe := twoStepRecipe()
	recipe.IntroText = "Welcome to Test Pasta."
	recipe.IntroAudioRef = "/static/audio/intro.mp3"
	c, narr, _ := setup(t, recipe)

	c.Play()
	first := narr.last(t)
	if first.text != "Welcome to Test Pasta." || first.ref != "/static/audio/intro.mp3" {
		t.Fatalf("first narration = %+v, want the intro", first)
	}

	narr.completeLast(t)
	waitFor(t, func() bool { return narr.count() == 2 },
		"step narration never followed the intro")
	if !strings.Contains(narr.last(t).text, "Boil the water.") {
		t.Fatalf("narrated %q after the intro, want step 0", narr.last(t).text)
	}

	c.Stop()
	c.Play()
	if got := narr.last(t).text; strings.Contains(got, "Welcome") {
		t.Fatal("intro must be spoken on the first Play only")
	}
}

func TestOutroSpokenAfterLastStep(t *testing.T) {
	recipe := twoStepRecipe()
	recipe.OutroText = "Enjoy your meal."
	c, narr, _ := setup(t, recipe)

	c.Next() // jump to the last step
	c.Play()
	narr.completeLast(t)

	waitFor(t, func() bool {
		return narr.count() == 2 && narr.last(t).text == "Enjoy your meal."
	}, "outro was never narrated")
	if c.Cursor().IsAutoPlaying {
		t.Fatal("auto-play must exit at the last step")
	}
}

func TestUnsupportedNarratorSkipsSilently(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	narr := &fakeNarrator{supported: false}
	c, err := NewController(twoStepRecipe(), narr, nil, log, WithAdvancePause(time.Millisecond))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	c.Play()
	if narr.count() != 0 {
		t.Fatal("unsupported narrator must not be asked to speak")
	}
	// Manual navigation still works without narration.
	c.Next()
	if got := c.Cursor().CurrentStepIndex; got != 1 {
		t.Fatalf("cursor = %d, want 1", got)
	}
}

func TestVoiceCommandsDriveTheController(t *testing.T) {
	c, _, _ := setup(t, twoStepRecipe())
	cmds := c.Commands()

	find := func(name string) domain.Command {
		t.Helper()
		for _, cmd := range cmds {
			if cmd.Name == name {
				return cmd
			}
		}
		t.Fatalf("command %q not registered", name)
		return domain.Command{}
	}

	find("next").Effect()
	if got := c.Cursor().CurrentStepIndex; got != 1 {
		t.Fatalf("cursor = %d after next, want 1", got)
	}
	find("complete").Effect()
	if !c.Cursor().CompletedSteps[1] {
		t.Fatal("complete must toggle the current step")
	}
	find("prev").Effect()
	if got := c.Cursor().CurrentStepIndex; got != 0 {
		t.Fatalf("cursor = %d after prev, want 0", got)
	}
}

func TestIngredientsTextReadsTheList(t *testing.T) {
	r := &domain.Recipe{
		Ingredients: []domain.Ingredient{
			{Name: "salmon fillets", Amount: "4", Unit: "pieces"},
			{Name: "butter", Amount: "3", Unit: "tablespoons"},
			{Name: "lemon"},
		},
	}
	want := "You will need: 4 pieces salmon fillets, 3 tablespoons butter, lemon."
	if got := IngredientsText(r); got != want {
		t.Fatalf("IngredientsText() = %q, want %q", got, want)
	}

	if got := IngredientsText(&domain.Recipe{}); got != "This recipe lists no ingredients." {
		t.Fatalf("empty recipe text = %q", got)
	}
}
