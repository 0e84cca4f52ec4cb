// Package tts synthesizes narration audio through the ElevenLabs REST API
// and manages the generated files under the dashboard audio directory.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	outputFormat   = "mp3_44100_128"

	// ElevenLabs rejects very long bodies; longer summaries are synthesized
	// in chunks and the MP3 frames concatenated.
	maxChunkChars = 4000
)

// Client synthesizes speech. Nil-safe: a nil *Client is a disabled
// integration.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	audioDir   string
	httpClient *http.Client
}

// New creates a client writing MP3 files into audioDir, or nil when no API
// key is configured.
func New(apiKey, audioDir string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		audioDir:   audioDir,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// NewWithBaseURL creates a client against a custom endpoint. Used by tests
// with a mock server.
func NewWithBaseURL(apiKey, audioDir, baseURL string) *Client {
	c := New(apiKey, audioDir)
	if c != nil {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c != nil }

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize renders text with the given voice into a new MP3 file named
// <prefix>-<epoch>-<rand>.mp3 under the audio directory and returns the file
// name. Long texts are chunked on line boundaries.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, prefix string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("tts disabled")
	}
	if voiceID == "" {
		return "", fmt.Errorf("voice id required")
	}

	var audio []byte
	for _, chunk := range splitChunks(text, maxChunkChars) {
		data, err := c.synthesizeChunk(ctx, chunk, voiceID)
		if err != nil {
			return "", err
		}
		audio = append(audio, data...)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio response")
	}

	if err := os.MkdirAll(c.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d-%04d.mp3", prefix, time.Now().Unix(), rand.IntN(10000))
	if err := os.WriteFile(filepath.Join(c.audioDir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return name, nil
}

func (c *Client) synthesizeChunk(ctx context.Context, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}

// splitChunks splits text at line boundaries into pieces of at most max
// bytes. A single oversized line is cut mid-line.
func splitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > max {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, line[:max])
			line = line[max:]
		}
		if cur.Len()+len(line) > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
