// dashd — the pi5 dashboard server. Hosts the interactive CLI session
// service and the harness orchestrator behind one HTTP + WebSocket listener.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cruzjc/pi5-dashboard/pkg/aicli"
	"github.com/cruzjc/pi5-dashboard/pkg/api"
	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/harness"
	"github.com/cruzjc/pi5-dashboard/pkg/llm"
	"github.com/cruzjc/pi5-dashboard/pkg/narrate"
	"github.com/cruzjc/pi5-dashboard/pkg/notify"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
	"github.com/cruzjc/pi5-dashboard/pkg/tts"
	"github.com/cruzjc/pi5-dashboard/pkg/version"
)

const shutdownTimeout = 15 * time.Second

var redactableKey = regexp.MustCompile(`(KEY|TOKEN|SECRET)$`)

func main() {
	// 1. Load the keys env file into the process environment, then settings.
	settings := config.LoadSettings()
	if err := godotenv.Load(settings.KeysEnvPath); err != nil {
		slog.Warn("Could not load keys env file, continuing with existing environment",
			"path", settings.KeysEnvPath, "error", err)
	}
	settings = config.LoadSettings()

	limits, err := config.ResolveLimits(config.LimitsFromEnv())
	if err != nil {
		slog.Error("Invalid limits configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting dashd",
		"version", version.Full(),
		"listen_addr", settings.ListenAddr,
		"data_dir", settings.DataDir)

	for _, dir := range []string{
		settings.TranscriptsDir(),
		settings.MetadataDir(),
		settings.HarnessRunsDir(),
		settings.HarnessArtifactsDir(),
		settings.HarnessWorktreesDir(),
		settings.HarnessTranscriptsDir(),
		settings.AudioDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Could not create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// 2. Shared collaborators: env store, personas, LLM, TTS, narrator.
	envStore := config.NewEnvStore(settings.KeysEnvPath)
	personas := persona.LoadRegistry(settings.PersonasFile)
	llmClient := llm.New(settings.OpenAIKey, settings.LLMModel)
	ttsClient := tts.New(settings.ElevenLabsKey, settings.AudioDir())
	narrator := narrate.NewNarrator(llmClient, ttsClient, settings.AudioDir(), limits.AudioKeep)
	notifier := notify.NewService(notify.Config{
		Token:        settings.SlackBotToken,
		ChannelID:    settings.SlackChannelID,
		DashboardURL: settings.PublicBaseURL,
	})

	// 3. Transcript writers, with stored secrets redacted.
	cliTranscripts := terminal.NewTranscriptWriter(settings.TranscriptsDir())
	runTranscripts := terminal.NewTranscriptWriter(settings.HarnessTranscriptsDir())
	if redactor := buildRedactor(envStore); redactor != nil {
		cliTranscripts.SetRedactor(redactor)
		runTranscripts.SetRedactor(redactor)
	}

	// 4. CLI session service.
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cliService := aicli.NewService(aicli.Options{
		Workspace:   home,
		Limits:      limits,
		Personas:    personas,
		Narrator:    narrator,
		Transcripts: cliTranscripts,
	})

	// 5. Harness orchestrator.
	harnessService := harness.NewService(harness.Options{
		SharedRepos:  settings.SharedRepos,
		RunsDir:      settings.HarnessRunsDir(),
		ArtifactsDir: settings.HarnessArtifactsDir(),
		WorktreesDir: settings.HarnessWorktreesDir(),
		Limits:       limits,
		Personas:     personas,
		LLM:          llmClient,
		Narrator:     narrator,
		Notifier:     notifier,
		Transcripts:  runTranscripts,
	})

	// 6. HTTP server (non-blocking start).
	httpServer := api.NewServer(cliService, harnessService, envStore, settings.AudioDir())
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(settings.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: drain HTTP first so no new work arrives, then
	// stop runs and sessions.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	httpCancel()

	harnessService.Shutdown(ctx)
	cliService.Shutdown(ctx)

	slog.Info("Shutdown complete")
}

// buildRedactor masks stored secret values in transcripts. Only values of
// keys that look like credentials and are long enough to be unambiguous are
// replaced.
func buildRedactor(store *config.EnvStore) func(string) string {
	values, err := store.Load()
	if err != nil {
		slog.Warn("Could not load env store for transcript redaction", "error", err)
		return nil
	}
	var secrets []string
	for key, value := range values {
		if redactableKey.MatchString(key) && len(value) >= 8 {
			secrets = append(secrets, value)
		}
	}
	if len(secrets) == 0 {
		return nil
	}
	return func(text string) string {
		for _, secret := range secrets {
			text = strings.ReplaceAll(text, secret, "[redacted]")
		}
		return text
	}
}
