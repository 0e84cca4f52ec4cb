package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/aicli"
	"github.com/cruzjc/pi5-dashboard/pkg/config"
	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/harness"
	"github.com/cruzjc/pi5-dashboard/pkg/persona"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	limits, err := config.ResolveLimits(config.Limits{})
	require.NoError(t, err)
	personas := persona.NewRegistry(persona.Defaults())

	cli := aicli.NewService(aicli.Options{
		Workspace: t.TempDir(),
		Limits:    limits,
		Personas:  personas,
	})
	hs := harness.NewService(harness.Options{
		SharedRepos:  t.TempDir(),
		RunsDir:      t.TempDir(),
		ArtifactsDir: t.TempDir(),
		WorktreesDir: t.TempDir(),
		Limits:       limits,
		Personas:     personas,
	})
	env := config.NewEnvStore(t.TempDir() + "/keys.env")
	return NewServer(cli, hs, env, "")
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestListProviders(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/ai-cli/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "codex", list[0]["id"])
}

func TestUnknownProviderIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/ai-cli/session/vim", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	assert.NotEmpty(t, body.Error)
}

func TestUnknownRunIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/harness/runs/absent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRunRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/harness/runs", `{"title":""}`)
	// Missing fields surface as 400 (or 503 on hosts without a pty).
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusServiceUnavailable}, rec.Code)
}

func TestPersonaSendRequiresText(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/ai-cli/session/codex/persona/send",
		`{"text":"   ","mode":"selected"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAudioDisabledWithoutDir(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/audio/x.mp3", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNoStoreHeader(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestEnvEditorCRUD(t *testing.T) {
	s := newTestServer(t)

	// Empty store lists nothing.
	rec := doRequest(t, s, http.MethodGet, "/api/config/env", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []envEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)

	// Merge-update two keys, one of them secret-looking.
	rec = doRequest(t, s, http.MethodPut, "/api/config/env",
		`{"values":{"OPENAI_API_KEY":"sk-1234567890abcdef","EDITOR_NOTE":"hello"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/config/env", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	// Sorted by key: EDITOR_NOTE first.
	assert.Equal(t, "EDITOR_NOTE", entries[0].Key)
	assert.Equal(t, "hello", entries[0].Value)
	assert.False(t, entries[0].Secret)

	assert.Equal(t, "OPENAI_API_KEY", entries[1].Key)
	assert.True(t, entries[1].Secret)
	assert.True(t, entries[1].Set)
	assert.NotContains(t, entries[1].Value, "1234567890abcdef")
	assert.True(t, strings.HasPrefix(entries[1].Value, "sk-1"))

	// Delete one, then deleting it again is 404.
	rec = doRequest(t, s, http.MethodDelete, "/api/config/env/EDITOR_NOTE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, s, http.MethodDelete, "/api/config/env/EDITOR_NOTE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnvEditorRejectsBadKeys(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/config/env", `{"values":{"lower-case":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/config/env", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fault.ErrUnavailableDependency, http.StatusServiceUnavailable},
		{fault.ErrUnknownTarget, http.StatusNotFound},
		{fault.ErrInvalidInput, http.StatusBadRequest},
		{fault.ErrUnsupportedAuthMode, http.StatusBadRequest},
		{fault.ErrPathEscape, http.StatusBadRequest},
		{fault.ErrNoComposerInteraction, http.StatusBadRequest},
		{fault.ErrNoCapturedOutput, http.StatusBadRequest},
		{fault.ErrSessionNotRunning, http.StatusConflict},
		{fault.ErrDirtyRepo, http.StatusConflict},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		he := mapServiceError(fmt.Errorf("wrapped: %w", tt.err))
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "••••••••", maskSecret("short"))
	got := maskSecret("sk-abcdefghijklmnop")
	assert.True(t, strings.HasPrefix(got, "sk-a"))
	assert.NotContains(t, got, "efghijklmnop")
}
