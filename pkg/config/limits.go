package config

import (
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"
)

// Limits are the tunable bounds of the two subsystems. Zero-valued fields in
// an override are filled from DefaultLimits.
type Limits struct {
	MaxSubtasks         int `json:"maxSubtasks"`
	MainBufferChars     int `json:"mainBufferChars"`
	AuthBufferChars     int `json:"authBufferChars"`
	NarrationWindow     int `json:"narrationWindow"`    // chars of captured output fed to the narrator
	VerifyOutputTail    int `json:"verifyOutputTail"`   // chars kept per verification command
	RunnerCaptureBytes  int `json:"runnerCaptureBytes"` // raw/plain accumulator cap per job
	AudioKeep           int `json:"audioKeep"`          // newest audio files kept per provider
	RunListCap          int `json:"runListCap"`
	AuthStatusTimeoutS  int `json:"authStatusTimeoutSec"`
	PushOutputTail      int `json:"pushOutputTail"`
	SummaryRewriteWords int `json:"summaryRewriteWords"`
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSubtasks:         3,
		MainBufferChars:     220_000,
		AuthBufferChars:     60_000,
		NarrationWindow:     14_000,
		VerifyOutputTail:    5_000,
		RunnerCaptureBytes:  2 * 1024 * 1024,
		AudioKeep:           60,
		RunListCap:          100,
		AuthStatusTimeoutS:  12,
		PushOutputTail:      4_000,
		SummaryRewriteWords: 180,
	}
}

// ResolveLimits merges an override over the defaults. Only positive override
// fields take effect.
func ResolveLimits(override Limits) (Limits, error) {
	limits := DefaultLimits()
	if err := mergo.Merge(&limits, override, mergo.WithOverride); err != nil {
		return Limits{}, fmt.Errorf("merge limits: %w", err)
	}
	return limits, nil
}

// LimitsFromEnv builds an override from PI5_MAX_SUBTASKS-style variables.
// Unset or malformed values leave the default in place.
func LimitsFromEnv() Limits {
	var o Limits
	o.MaxSubtasks = intEnv("PI5_MAX_SUBTASKS")
	o.MainBufferChars = intEnv("PI5_MAIN_BUFFER_CHARS")
	o.AuthBufferChars = intEnv("PI5_AUTH_BUFFER_CHARS")
	o.RunListCap = intEnv("PI5_RUN_LIST_CAP")
	return o
}

func intEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
