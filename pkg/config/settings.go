// Package config holds the service settings, the secrets env-file store and
// the tunable limits shared by the CLI session service and the harness.
package config

import (
	"os"
	"path/filepath"
)

// Settings are the boot-time service settings, read from environment
// variables (after the keys env file has been loaded into the process
// environment).
type Settings struct {
	ListenAddr    string
	DataDir       string
	KeysEnvPath   string
	SharedRepos   string
	PersonasFile  string
	PublicBaseURL string

	// Secrets. Empty disables the corresponding integration.
	OpenAIKey      string
	LLMModel       string
	ElevenLabsKey  string
	SlackBotToken  string
	SlackChannelID string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// LoadSettings reads settings from the environment, applying defaults.
func LoadSettings() Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := getEnv("PI5_DATA_DIR", filepath.Join(home, ".pi5-dashboard"))
	return Settings{
		ListenAddr:    getEnv("PI5_LISTEN_ADDR", ":8090"),
		DataDir:       dataDir,
		KeysEnvPath:   getEnv("PI5_KEYS_ENV", filepath.Join(home, ".pi5-dashboard.keys.env")),
		SharedRepos:   getEnv("PI5_SHARED_REPOS", filepath.Join(home, "shared-repos")),
		PersonasFile:  getEnv("PI5_PERSONAS_FILE", filepath.Join(dataDir, "personas.yaml")),
		PublicBaseURL: os.Getenv("PI5_PUBLIC_BASE_URL"),

		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		LLMModel:       getEnv("PI5_LLM_MODEL", "gpt-4o-mini"),
		ElevenLabsKey:  os.Getenv("ELEVENLABS_API_KEY"),
		SlackBotToken:  os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannelID: os.Getenv("SLACK_CHANNEL_ID"),
	}
}

// Derived data-directory paths. Everything lives under DataDir, split into
// an ai-cli and a harness subtree.

// TranscriptsDir is where CLI session transcripts are appended.
func (s Settings) TranscriptsDir() string { return filepath.Join(s.DataDir, "ai-cli", "transcripts") }

// MetadataDir is reserved for provider metadata.
func (s Settings) MetadataDir() string { return filepath.Join(s.DataDir, "ai-cli", "metadata") }

// HarnessRunsDir holds one JSON snapshot per run.
func (s Settings) HarnessRunsDir() string { return filepath.Join(s.DataDir, "harness", "runs") }

// HarnessArtifactsDir holds one artifact tree per run.
func (s Settings) HarnessArtifactsDir() string {
	return filepath.Join(s.DataDir, "harness", "artifacts")
}

// HarnessWorktreesDir holds the per-run git worktrees.
func (s Settings) HarnessWorktreesDir() string {
	return filepath.Join(s.DataDir, "harness", "worktrees")
}

// HarnessTranscriptsDir is where run channel transcripts are appended.
func (s Settings) HarnessTranscriptsDir() string {
	return filepath.Join(s.DataDir, "harness", "transcripts")
}

// AudioDir holds generated TTS audio files.
func (s Settings) AudioDir() string { return filepath.Join(s.DataDir, "audio") }
