// Foodly companion — a hands-free cooking session driven by voice.
//
// Usage:
//
//	foodly [-verbose] [-quiet] [-recipe <id>]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/foodly/companion/internal/config"
	"github.com/foodly/companion/internal/display"
	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/listen"
	"github.com/foodly/companion/internal/logger"
	"github.com/foodly/companion/internal/narrate"
	"github.com/foodly/companion/internal/prefs"
	"github.com/foodly/companion/internal/recipe"
	"github.com/foodly/companion/internal/session"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".foodly-logs/foodly.log", "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "disable narration even if audio is available")
	noVoice := flag.Bool("no-voice", false, "disable voice input")
	recipeID := flag.String("recipe", "", "recipe ID to cook (defaults to the first available)")
	flag.Parse()

	cfg := config.Load()

	// Configure logger.
	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Direct logs to a file by default so the REPL stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Redirect Go's default log package (used by third-party libs like
	// the whisper transcriber) to the same output so it doesn't spam
	// the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	// Set up context — cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preference store. A broken prefs file degrades to in-memory.
	var prefStore domain.PrefStore
	if fs, err := prefs.NewFileStore(cfg.PrefsFile, log); err != nil {
		log.Warn("prefs file unusable, preferences will not persist: %v", err)
		prefStore = prefs.NewMemoryStore()
	} else {
		prefStore = fs
	}

	// Recipe source: the backend when reachable, built-ins otherwise.
	var source domain.RecipeSource
	client := recipe.NewClient(cfg.Backend.Origin, log)
	probeCtx, probeCancel := context.WithTimeout(ctx, 3*time.Second)
	if _, err := client.List(probeCtx); err != nil {
		log.Info("backend %s unreachable (%v), using built-in recipes", cfg.Backend.Origin, err)
		source = recipe.NewMemorySource(log)
		client = nil
	} else {
		log.Info("recipes served by %s", cfg.Backend.Origin)
		source = client
	}
	probeCancel()

	r, err := pickRecipe(ctx, source, *recipeID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Voice selection: the preference heuristic runs over the backend's
	// live catalog when reachable, over the built-in catalog otherwise.
	catalog := narrate.DefaultVoiceCatalog
	if client != nil {
		if voices, err := client.Voices(ctx); err == nil && len(voices) > 0 {
			catalog = voices
		}
	}
	voiceID := narrate.PreferVoice(catalog, cfg.Narration.Locale, cfg.Narration.VoiceID)

	// Narration: clip playback whenever audio output works, synthesis
	// when Azure credentials are present. Either may be missing; the
	// player degrades accordingly.
	var synthBackend domain.SpeechSynthesizer
	var clipBackend domain.ClipPlayer
	var synth *narrate.Synth

	if !*noSpeech {
		sink, err := narrate.NewSink(log)
		if err != nil {
			log.Error("audio init failed, narration disabled: %v", err)
		} else {
			clipBackend = narrate.NewClips(cfg.Backend.Origin, sink, log)

			if cfg.Azure.SpeechKey != "" && cfg.Azure.SpeechRegion != "" {
				azure := narrate.NewAzureClient(cfg.Azure.SpeechKey, cfg.Azure.SpeechRegion, log)
				cache := narrate.NewCache(cfg.Narration.CacheDir, cfg.Narration.DiskCache, log)

				synth = narrate.NewSynth(azure, sink, cache, log,
					narrate.WithDefaultVoice(voiceID),
					narrate.WithVoiceCatalog(catalog),
				)
				synthBackend = synth
				log.Info("synthesis enabled (voice=%s, region=%s)", voiceID, cfg.Azure.SpeechRegion)
			} else {
				log.Info("synthesis disabled: set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION to enable")
			}
		}
	}

	player := narrate.NewPlayer(synthBackend, clipBackend, log,
		narrate.WithVoice(voiceID),
	)

	// Pre-warm the synthesis cache for texts without pre-rendered clips.
	if synth != nil {
		texts := []string{r.IntroText, r.OutroText}
		if r.IngredientsAudioRef == "" {
			texts = append(texts, session.IngredientsText(r))
		}
		for _, step := range r.Steps {
			if step.AudioRef == "" {
				texts = append(texts, session.StepText(step))
			}
		}
		synth.Prefetch(texts...)
	}

	// Recognition engine per configured provider.
	var engine domain.RecognitionEngine
	if !*noVoice {
		switch cfg.Voice.Provider {
		case "whisper":
			we, err := listen.NewWhisperEngine(cfg.Voice.WhisperBin, cfg.Voice.WhisperModel, log,
				listen.WithEchoGuard(player.IsSpeaking),
			)
			if err != nil {
				log.Info("voice input unavailable: %v", err)
			} else {
				engine = we
			}
		case "stream":
			if cfg.Voice.StreamURL == "" {
				log.Info("voice input unavailable: FOODLY_STREAM_URL not set")
			} else {
				engine = listen.NewStreamEngine(cfg.Voice.StreamURL, cfg.Voice.StreamKey, log,
					listen.WithCapture(listen.NewMicCapture(log)),
				)
			}
		case "off":
			log.Info("voice input disabled by configuration")
		default:
			log.Warn("unknown voice provider %q, voice input disabled", cfg.Voice.Provider)
		}
	}

	ctrl, err := session.NewController(r, player, prefStore, log,
		session.WithAdvancePause(cfg.AdvancePause()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: recipe %q: %v\n", r.ID, err)
		os.Exit(1)
	}

	// The status closure reads voice, which is assigned below — before
	// the UI starts polling.
	var voice *listen.Session
	ui := display.NewUI(func() display.Status {
		cur := ctrl.Cursor()
		return display.Status{
			RecipeTitle: r.Title,
			StepIndex:   cur.CurrentStepIndex,
			StepCount:   ctrl.StepCount(),
			Completed:   len(cur.CompletedSteps),
			Recognition: voice.State(),
			Listening:   voice.IsListening(),
			Speaking:    player.IsSpeaking(),
			AutoAdvance: cur.AutoAdvanceEnabled,
			AutoPlaying: cur.IsAutoPlaying,
		}
	})

	matcher := listen.NewMatcher(listen.WithThrottleWindow(cfg.ThrottleWindow()))
	voice = listen.NewSession(engine, matcher, log,
		listen.WithRestartDelay(cfg.RestartDelay()),
		listen.WithStateHook(func(st domain.RecognitionState) {
			if st == domain.RecognitionErrorStopped {
				ui.PrintUrgent("Voice input stopped after an error — type 'mic' to retry.")
			}
		}),
	)

	// Echo matched voice commands into the scrollback before they run.
	cmds := ctrl.Commands()
	for i := range cmds {
		name, effect := cmds[i].Name, cmds[i].Effect
		cmds[i].Effect = func() {
			ui.PrintVoice(name)
			effect()
		}
	}
	voice.SetCommands(cmds)

	app := &cliApp{
		ctrl:   ctrl,
		voice:  voice,
		player: player,
		log:    log,
		ui:     ui,
	}

	fmt.Println(display.RenderBanner())
	if voice.Supported() {
		fmt.Println(display.BannerStyle.Render("  Voice control ON — say \"next\", \"repeat\", \"start cooking\", ..."))
		fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	} else {
		fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	}
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal — blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	voice.Close()
	player.Stop()
}

// pickRecipe resolves the recipe to cook: the requested ID, or the
// first one the source lists.
func pickRecipe(ctx context.Context, source domain.RecipeSource, id string) (*domain.Recipe, error) {
	if id != "" {
		r, err := source.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading recipe %q: %w", id, err)
		}
		return r, nil
	}
	summaries, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no recipes available")
	}
	return source.Get(ctx, summaries[0].ID)
}

type cliApp struct {
	ctrl   *session.Controller
	voice  *listen.Session
	player *narrate.Player
	log    *logger.Logger
	ui     *display.UI

	lastShown atomic.Int64 // last step index printed, avoids re-print spam
}

func (a *cliApp) run(ctx context.Context) {
	r := a.ctrl.Recipe()

	a.ui.PrintStep(fmt.Sprintf("=== %s ===", r.Title))
	a.ui.PrintInstruction(r.Description)
	if r.Servings != "" {
		a.ui.PrintHint("Servings: " + r.Servings)
	}
	a.ui.Println("")
	a.showIngredients()
	a.ui.Println("")

	a.lastShown.Store(-1)
	a.showCurrentStep()

	if a.voice.Supported() {
		a.voice.Start()
	}
	if !a.player.Supported() {
		a.ui.PrintHint("Narration is unavailable; steps are shown here instead.")
	}
	a.ui.PrintChat("Say or type 'start cooking' when you're ready.")

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ui.QuitChan():
			// Ctrl-C ends the display directly; stop driving it.
			return
		case input, ok := <-a.ui.InputChan():
			if !ok {
				return
			}
			if a.handleCommand(strings.ToLower(strings.TrimSpace(input))) {
				return
			}
		case <-time.After(250 * time.Millisecond):
			// Voice commands mutate the cursor from engine goroutines;
			// reflect any movement in the scrollback.
			a.showCurrentStep()
		}
	}
}

// handleCommand dispatches one typed command. Returns true to quit.
func (a *cliApp) handleCommand(input string) bool {
	switch input {
	case "":
		return false
	case "quit", "exit":
		a.ui.PrintChat("Happy cooking!")
		return true
	case "help":
		a.showHelp()
	case "next", "n":
		a.ctrl.Next()
		a.showCurrentStep()
	case "prev", "back", "p":
		a.ctrl.Prev()
		a.showCurrentStep()
	case "play", "start", "start cooking", "resume":
		a.ctrl.Play()
		a.showCurrentStep()
	case "stop", "pause", "wait":
		a.ctrl.Stop()
		a.ui.PrintHint("Paused. 'play' to continue.")
	case "repeat", "again":
		a.ctrl.Repeat()
	case "done", "complete":
		a.ctrl.ToggleComplete(a.ctrl.Cursor().CurrentStepIndex)
		a.showProgress()
	case "auto":
		a.ctrl.ToggleAutoAdvance()
		if a.ctrl.Cursor().AutoAdvanceEnabled {
			a.ui.PrintHint("Auto-advance on.")
		} else {
			a.ui.PrintHint("Auto-advance off.")
		}
	case "mic", "listen":
		if !a.voice.Supported() {
			a.ui.PrintHint("Voice input is not available.")
			break
		}
		a.voice.Toggle()
		if a.voice.IsListening() {
			a.ui.PrintHint("Microphone on.")
		} else {
			a.ui.PrintHint("Microphone off.")
		}
	case "steps":
		a.showSteps()
	case "ingredients":
		a.showIngredients()
		// Narrating here would orphan the auto-play completion chain.
		if !a.ctrl.Cursor().IsAutoPlaying {
			r := a.ctrl.Recipe()
			a.player.Speak(session.IngredientsText(r), r.IngredientsAudioRef, nil)
		}
	case "reset":
		a.ctrl.Reset()
		a.lastShown.Store(-1)
		a.showCurrentStep()
	default:
		a.ui.PrintHint(fmt.Sprintf("Unknown command %q — type 'help'.", input))
	}
	return false
}

// showCurrentStep prints the step under the cursor when it changed
// since the last print.
func (a *cliApp) showCurrentStep() {
	cur := a.ctrl.Cursor()
	idx := int64(cur.CurrentStepIndex)
	if a.lastShown.Swap(idx) == idx {
		return
	}

	step := a.ctrl.CurrentStep()
	header := fmt.Sprintf("Step %d/%d", cur.CurrentStepIndex+1, a.ctrl.StepCount())
	if step.DurationText != "" {
		header += fmt.Sprintf(" (~%s)", step.DurationText)
	}
	a.ui.PrintStep(header)
	a.ui.PrintInstruction(step.Instruction)
	if step.TipText != "" {
		a.ui.PrintHint("tip: " + step.TipText)
	}
}

func (a *cliApp) showProgress() {
	cur := a.ctrl.Cursor()
	a.ui.PrintHint(fmt.Sprintf("%d of %d steps complete.", len(cur.CompletedSteps), a.ctrl.StepCount()))
}

func (a *cliApp) showSteps() {
	cur := a.ctrl.Cursor()
	for i, step := range a.ctrl.Recipe().Steps {
		mark := "[ ]"
		if cur.CompletedSteps[i] {
			mark = "[x]"
		}
		pointer := "  "
		if i == cur.CurrentStepIndex {
			pointer = "▸ "
		}
		a.ui.PrintInstruction(fmt.Sprintf("%s%s %d. %s", pointer, mark, i+1, truncateStr(step.Instruction, 80)))
	}
}

func (a *cliApp) showIngredients() {
	a.ui.PrintStep("Ingredients:")
	for _, ing := range a.ctrl.Recipe().Ingredients {
		line := "  - "
		if ing.Amount != "" {
			line += ing.Amount + " "
		}
		if ing.Unit != "" {
			line += ing.Unit + " "
		}
		line += ing.Name
		if ing.Notes != "" {
			line += " (" + ing.Notes + ")"
		}
		a.ui.PrintInstruction(line)
	}
}

func (a *cliApp) showHelp() {
	a.ui.PrintStep("Commands (also recognized by voice when the mic is on):")
	a.ui.PrintInstruction("  play / start     Start auto-narrated cooking")
	a.ui.PrintInstruction("  stop / pause     Stop narration, stay on this step")
	a.ui.PrintInstruction("  next / n         Move to the next step")
	a.ui.PrintInstruction("  prev / back      Move to the previous step")
	a.ui.PrintInstruction("  repeat / again   Narrate the current step again")
	a.ui.PrintInstruction("  done / complete  Toggle this step's completed mark")
	a.ui.PrintInstruction("  auto             Toggle auto-advance after narration")
	a.ui.PrintInstruction("  mic / listen     Toggle voice input")
	a.ui.PrintInstruction("  steps            Show all steps and progress")
	a.ui.PrintInstruction("  ingredients      Show the ingredient list")
	a.ui.PrintInstruction("  reset            Back to step 1, progress cleared")
	a.ui.PrintInstruction("  quit / exit      Leave the kitchen")
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
