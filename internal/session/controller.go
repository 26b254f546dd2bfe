// Package session implements the cooking session controller: the state
// machine binding recipe steps, narration, and recognized voice or
// manual commands into one coherent session.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// prefAutoAdvance is the persisted auto-advance preference key. The
// value is the plain string "true" or "false".
const prefAutoAdvance = "autoAdvanceEnabled"

// Narrator is the narration surface the controller drives. Satisfied
// by *narrate.Player.
type Narrator interface {
	// Speak voices text, preferring the clip at audioRef when present.
	// onComplete fires exactly once on natural completion, never after
	// Stop.
	Speak(text, audioRef string, onComplete func())
	Stop()
	Supported() bool
}

// Option configures the controller.
type Option func(*Controller)

// WithAdvancePause sets the breath between a step's narration
// completing and the next step starting in auto-play.
func WithAdvancePause(d time.Duration) Option {
	return func(c *Controller) { c.advancePause = d }
}

// WithCursorHook registers a callback invoked (without the controller
// lock held) whenever the cursor changes. Used by the display.
func WithCursorHook(fn func(domain.SessionCursor)) Option {
	return func(c *Controller) { c.onCursor = fn }
}

// Controller owns the session cursor. All mutation goes through its
// methods; callers observe copies.
//
// Narration is an effect of auto-play (or an explicit Repeat) only —
// manual navigation never starts it. A generation counter invalidates
// the pending auto-advance timer and stale narration completions
// whenever a transition changes what is supposed to be playing.
type Controller struct {
	recipe   *domain.Recipe
	narrator Narrator
	prefs    domain.PrefStore
	log      *logger.Logger

	advancePause time.Duration
	onCursor     func(domain.SessionCursor)

	mu           sync.Mutex
	cursor       domain.SessionCursor
	playGen      uint64
	advanceTimer *time.Timer
	introDone    bool
}

// NewController starts a session over the recipe at step 0 with no
// steps completed. The auto-advance preference is read from the store;
// it defaults to enabled when never set.
func NewController(recipe *domain.Recipe, narrator Narrator, prefs domain.PrefStore, log *logger.Logger, opts ...Option) (*Controller, error) {
	if recipe == nil || len(recipe.Steps) == 0 {
		return nil, domain.ErrNoSteps
	}
	c := &Controller{
		recipe:       recipe,
		narrator:     narrator,
		prefs:        prefs,
		log:          log,
		advancePause: domain.DefaultAdvancePause,
		cursor: domain.SessionCursor{
			CompletedSteps:     make(map[int]bool),
			AutoAdvanceEnabled: true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if prefs != nil {
		if v, ok := prefs.Get(prefAutoAdvance); ok {
			c.cursor.AutoAdvanceEnabled = v == "true"
		}
	}
	return c, nil
}

// Cursor returns a copy of the session cursor.
func (c *Controller) Cursor() domain.SessionCursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursorCopyLocked()
}

// CurrentStep returns the step under the cursor.
func (c *Controller) CurrentStep() domain.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recipe.Steps[c.cursor.CurrentStepIndex]
}

// StepCount returns the number of steps in the session's recipe.
func (c *Controller) StepCount() int { return len(c.recipe.Steps) }

// Recipe returns the recipe this session cooks.
func (c *Controller) Recipe() *domain.Recipe { return c.recipe }

// Next moves the cursor forward, clamped to the last step. Any
// narration stops; navigation never starts narration on its own.
func (c *Controller) Next() { c.move(+1) }

// Prev moves the cursor back, clamped to step 0. Any narration stops.
func (c *Controller) Prev() { c.move(-1) }

func (c *Controller) move(delta int) {
	c.mu.Lock()
	c.invalidateLocked()

	idx := c.cursor.CurrentStepIndex + delta
	if idx < 0 {
		idx = 0
	}
	if last := len(c.recipe.Steps) - 1; idx > last {
		idx = last
	}
	changed := idx != c.cursor.CurrentStepIndex
	c.cursor.CurrentStepIndex = idx
	c.notifyLocked()
	c.mu.Unlock()

	c.stopNarration()
	if changed {
		c.log.Debug("session: cursor at step %d", idx+1)
	}
}

// Play enters auto-play and narrates the current step. On the first
// Play of the session the recipe intro, when present, is spoken first.
func (c *Controller) Play() {
	c.mu.Lock()
	c.invalidateLocked()
	gen := c.playGen
	c.cursor.IsAutoPlaying = true

	intro := ""
	introRef := ""
	if !c.introDone {
		c.introDone = true
		intro, introRef = c.recipe.IntroText, c.recipe.IntroAudioRef
	}
	c.notifyLocked()
	c.mu.Unlock()

	c.stopNarration()
	if intro != "" || introRef != "" {
		c.speak(intro, introRef, func() {
			if c.stillPlaying(gen) {
				c.narrateCurrent(gen)
			}
		})
		return
	}
	c.narrateCurrent(gen)
}

// Stop exits auto-play and stops narration immediately. The cursor
// index is unchanged. Safe to call at any time, including during the
// auto-advance pause, which it cancels.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.invalidateLocked()
	c.cursor.IsAutoPlaying = false
	c.notifyLocked()
	c.mu.Unlock()

	c.stopNarration()
}

// Repeat re-narrates the current step without changing the auto-play
// state or the cursor. In auto-play the completion chain continues as
// if the step had just been narrated.
func (c *Controller) Repeat() {
	c.mu.Lock()
	c.invalidateLocked()
	gen := c.playGen
	c.mu.Unlock()

	c.stopNarration()
	c.narrateCurrent(gen)
}

// SetAutoAdvance persists the auto-advance preference. It does not
// change the auto-play state, only future completion behavior.
func (c *Controller) SetAutoAdvance(enabled bool) {
	c.mu.Lock()
	c.cursor.AutoAdvanceEnabled = enabled
	c.notifyLocked()
	c.mu.Unlock()

	if c.prefs != nil {
		v := "false"
		if enabled {
			v = "true"
		}
		if err := c.prefs.Set(prefAutoAdvance, v); err != nil {
			c.log.Warn("session: persisting auto-advance: %v", err)
		}
	}
}

// ToggleAutoAdvance flips and persists the auto-advance preference.
func (c *Controller) ToggleAutoAdvance() {
	c.SetAutoAdvance(!c.Cursor().AutoAdvanceEnabled)
}

// ToggleComplete toggles the step's membership in the completed set.
// Independent of navigation and narration. Out-of-range indexes are
// ignored.
func (c *Controller) ToggleComplete(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.recipe.Steps) {
		return
	}
	if c.cursor.CompletedSteps[index] {
		delete(c.cursor.CompletedSteps, index)
	} else {
		c.cursor.CompletedSteps[index] = true
	}
	c.notifyLocked()
}

// Reset returns the session to its initial state: step 0, nothing
// completed, auto-play exited, narration stopped. Unconditional; any
// confirmation belongs at the UI boundary.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.invalidateLocked()
	c.cursor.CurrentStepIndex = 0
	c.cursor.CompletedSteps = make(map[int]bool)
	c.cursor.IsAutoPlaying = false
	c.notifyLocked()
	c.mu.Unlock()

	c.stopNarration()
}

// Commands returns the voice command set for this session, most
// specific phrases first. Slice order is the match priority.
func (c *Controller) Commands() []domain.Command {
	return []domain.Command{
		{Name: "next", Phrases: []string{"next step", "next", "skip"}, Effect: c.Next},
		{Name: "prev", Phrases: []string{"previous", "go back", "back"}, Effect: c.Prev},
		{Name: "repeat", Phrases: []string{"repeat", "again", "say that again"}, Effect: c.Repeat},
		{Name: "play", Phrases: []string{"start cooking", "play", "resume"}, Effect: c.Play},
		{Name: "stop", Phrases: []string{"stop", "pause", "wait"}, Effect: c.Stop},
		{Name: "complete", Phrases: []string{"mark complete", "done"}, Effect: func() {
			c.ToggleComplete(c.Cursor().CurrentStepIndex)
		}},
	}
}

// ── Narration loop ───────────────────────────────────────────────

// narrateCurrent speaks the step under the cursor for the given
// generation. When narration is unsupported the call is skipped;
// auto-play then stalls until manual input, since advancing is driven
// only by narration completion.
func (c *Controller) narrateCurrent(gen uint64) {
	if c.narrator == nil || !c.narrator.Supported() {
		return
	}

	c.mu.Lock()
	if gen != c.playGen {
		c.mu.Unlock()
		return
	}
	step := c.recipe.Steps[c.cursor.CurrentStepIndex]
	c.mu.Unlock()

	c.speak(StepText(step), step.AudioRef, func() {
		c.handleNarrationDone(gen)
	})
}

// handleNarrationDone is the auto-play continuation: wait the advance
// pause, then move to the next step and narrate it — unless the
// premise changed in the meantime.
func (c *Controller) handleNarrationDone(gen uint64) {
	c.mu.Lock()

	if gen != c.playGen || !c.cursor.IsAutoPlaying {
		c.mu.Unlock()
		return
	}
	if !c.cursor.AutoAdvanceEnabled {
		// Preference was turned off mid-narration: finish this step and
		// exit auto-play instead of advancing.
		c.cursor.IsAutoPlaying = false
		c.notifyLocked()
		c.mu.Unlock()
		return
	}
	if c.cursor.CurrentStepIndex >= len(c.recipe.Steps)-1 {
		c.cursor.IsAutoPlaying = false
		c.notifyLocked()
		outro, outroRef := c.recipe.OutroText, c.recipe.OutroAudioRef
		c.mu.Unlock()

		if outro != "" || outroRef != "" {
			c.speak(outro, outroRef, nil)
		}
		return
	}

	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
	}
	c.advanceTimer = time.AfterFunc(c.advancePause, func() { c.advance(gen) })
	c.mu.Unlock()
}

// advance fires after the pause. It re-checks the generation and the
// auto-play flag so a Stop or navigation during the pause wins.
func (c *Controller) advance(gen uint64) {
	c.mu.Lock()
	if gen != c.playGen || !c.cursor.IsAutoPlaying {
		c.mu.Unlock()
		return
	}
	c.cursor.CurrentStepIndex++
	c.notifyLocked()
	c.mu.Unlock()

	c.narrateCurrent(gen)
}

// StepText builds a step's narrated text: instruction, then duration
// as a clause, then the tip as a "pro tip" clause, in that order. Also
// used to prefetch synthesis audio before the step is reached.
func StepText(step domain.Step) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(step.Instruction))
	if s := b.String(); s != "" && !strings.ContainsRune(".!?", rune(s[len(s)-1])) {
		b.WriteString(".")
	}
	if step.DurationText != "" {
		fmt.Fprintf(&b, " This should take about %s.", step.DurationText)
	}
	if step.TipText != "" {
		fmt.Fprintf(&b, " Pro tip: %s", step.TipText)
	}
	return b.String()
}

// IngredientsText builds the narrated reading of a recipe's ingredient
// list. Spoken when the backend serves no pre-rendered clip for it.
func IngredientsText(r *domain.Recipe) string {
	if len(r.Ingredients) == 0 {
		return "This recipe lists no ingredients."
	}
	parts := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		words := make([]string, 0, 3)
		if ing.Amount != "" {
			words = append(words, ing.Amount)
		}
		if ing.Unit != "" {
			words = append(words, ing.Unit)
		}
		words = append(words, ing.Name)
		parts = append(parts, strings.Join(words, " "))
	}
	return "You will need: " + strings.Join(parts, ", ") + "."
}

// ── helpers ──────────────────────────────────────────────────────

func (c *Controller) speak(text, audioRef string, onComplete func()) {
	if c.narrator == nil || !c.narrator.Supported() {
		return
	}
	c.narrator.Speak(text, audioRef, onComplete)
}

func (c *Controller) stopNarration() {
	if c.narrator != nil {
		c.narrator.Stop()
	}
}

func (c *Controller) stillPlaying(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.playGen && c.cursor.IsAutoPlaying
}

// invalidateLocked bumps the generation and cancels the pending
// advance, rendering in-flight completions inert. Must be called with
// c.mu held.
func (c *Controller) invalidateLocked() {
	c.playGen++
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
		c.advanceTimer = nil
	}
}

// notifyLocked schedules the cursor hook with a copy. Must be called
// with c.mu held; the hook runs without the lock.
func (c *Controller) notifyLocked() {
	if c.onCursor != nil {
		go c.onCursor(c.cursorCopyLocked())
	}
}

func (c *Controller) cursorCopyLocked() domain.SessionCursor {
	cp := c.cursor
	cp.CompletedSteps = make(map[int]bool, len(c.cursor.CompletedSteps))
	for k, v := range c.cursor.CompletedSteps {
		cp.CompletedSteps[k] = v
	}
	return cp
}
