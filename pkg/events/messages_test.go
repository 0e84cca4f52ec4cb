package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

func TestServerMessageShapes(t *testing.T) {
	code := 1
	tests := []struct {
		name string
		msg  any
		want map[string]any
	}{
		{
			name: "output",
			msg:  Output("abc"),
			want: map[string]any{"type": "output", "data": "abc"},
		},
		{
			name: "snapshot",
			msg:  Snapshot("scrollback"),
			want: map[string]any{"type": "snapshot", "data": "scrollback"},
		},
		{
			name: "exit with code",
			msg:  Exit(&code, ""),
			want: map[string]any{"type": "exit", "code": float64(1)},
		},
		{
			name: "exit with signal",
			msg:  Exit(nil, "SIGKILL"),
			want: map[string]any{"type": "exit", "signal": "SIGKILL"},
		},
		{
			// The device code travels on the wire's code field, as a string.
			name: "auth hint",
			msg:  AuthHintMsg(terminal.AuthHint{URL: "https://auth.example", Code: "ABCD-1234", Text: "open the link"}),
			want: map[string]any{"type": "auth_hint", "url": "https://auth.example", "code": "ABCD-1234", "text": "open the link"},
		},
		{
			name: "auth hint url only",
			msg:  AuthHintMsg(terminal.AuthHint{URL: "https://auth.example", Text: "t"}),
			want: map[string]any{"type": "auth_hint", "url": "https://auth.example", "text": "t"},
		},
		{
			name: "error",
			msg:  ErrorMsg("nope"),
			want: map[string]any{"type": "error", "message": "nope"},
		},
		{
			name: "pong",
			msg:  Pong(42),
			want: map[string]any{"type": "pong", "ts": float64(42)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelloCarriesState(t *testing.T) {
	st := models.ChannelState{Target: "codex", Channel: "main", Running: true, Cols: 80, Rows: 24}
	data, err := json.Marshal(Hello(st))
	require.NoError(t, err)

	var got ServerMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeHello, got.Type)
	require.NotNil(t, got.State)
	assert.True(t, got.State.Running)
	assert.Equal(t, "codex", got.State.Target)
	assert.Equal(t, 80, got.State.Cols)
}

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ClientMessage
		wantErr bool
	}{
		{
			name: "ping",
			raw:  `{"type":"ping","ts":17}`,
			want: ClientMessage{Type: TypePing, TS: 17},
		},
		{
			name: "input",
			raw:  `{"type":"input","data":"ls\r"}`,
			want: ClientMessage{Type: TypeInput, Data: "ls\r"},
		},
		{
			name: "resize",
			raw:  `{"type":"resize","cols":120,"rows":40}`,
			want: ClientMessage{Type: TypeResize, Cols: 120, Rows: 40},
		},
		{
			name:    "unknown type rejected",
			raw:     `{"type":"shutdown"}`,
			wantErr: true,
		},
		{
			name:    "missing type rejected",
			raw:     `{"data":"x"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `not json`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientMessage([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
