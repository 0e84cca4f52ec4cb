// Package events carries the WebSocket wire protocol of channel streaming:
// typed message envelopes and the per-connection Gateway that bridges one
// socket to one PTY channel.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// Server → client message types.
const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeOutput   = "output"
	TypeState    = "state"
	TypeExit     = "exit"
	TypeAuthHint = "auth_hint"
	TypeError    = "error"
	TypePong     = "pong"
)

// Client → server message types.
const (
	TypePing   = "ping"
	TypeInput  = "input"
	TypeResize = "resize"
)

// ServerMessage is the tagged envelope for every server → client frame
// except auth_hint. Exactly the fields belonging to Type are populated.
type ServerMessage struct {
	Type    string               `json:"type"`
	State   *models.ChannelState `json:"state,omitempty"`   // hello, state
	Data    string               `json:"data,omitempty"`    // snapshot, output
	Code    *int                 `json:"code,omitempty"`    // exit
	Signal  string               `json:"signal,omitempty"`  // exit
	Message string               `json:"message,omitempty"` // error
	TS      int64                `json:"ts,omitempty"`      // pong
}

// AuthHintMessage is the auth_hint frame. It carries its own envelope: the
// device code is a string on the wire's code field, which in ServerMessage
// is already the numeric exit code.
type AuthHintMessage struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Code string `json:"code,omitempty"`
	Text string `json:"text"`
}

// Hello builds the attach greeting.
func Hello(st models.ChannelState) ServerMessage {
	return ServerMessage{Type: TypeHello, State: &st}
}

// Snapshot builds the reconnect scrollback replay.
func Snapshot(data string) ServerMessage {
	return ServerMessage{Type: TypeSnapshot, Data: data}
}

// Output wraps one raw PTY chunk.
func Output(data string) ServerMessage {
	return ServerMessage{Type: TypeOutput, Data: data}
}

// State wraps a full channel snapshot after a state transition.
func State(st models.ChannelState) ServerMessage {
	return ServerMessage{Type: TypeState, State: &st}
}

// Exit reports a child exit.
func Exit(code *int, signal string) ServerMessage {
	return ServerMessage{Type: TypeExit, Code: code, Signal: signal}
}

// AuthHintMsg surfaces a login URL or device code spotted on the auth
// subchannel.
func AuthHintMsg(h terminal.AuthHint) AuthHintMessage {
	return AuthHintMessage{Type: TypeAuthHint, URL: h.URL, Code: h.Code, Text: h.Text}
}

// ErrorMsg reports a rejected client action.
func ErrorMsg(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

// Pong answers a ping, echoing its timestamp.
func Pong(ts int64) ServerMessage {
	return ServerMessage{Type: TypePong, TS: ts}
}

// ClientMessage is the tagged envelope for every client → server frame.
type ClientMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts,omitempty"`   // ping
	Data string `json:"data,omitempty"` // input
	Cols int    `json:"cols,omitempty"` // resize
	Rows int    `json:"rows,omitempty"` // resize
}

// DecodeClientMessage strictly decodes one client frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Type {
	case TypePing, TypeInput, TypeResize:
		return msg, nil
	default:
		return ClientMessage{}, fmt.Errorf("unknown client message type %q", msg.Type)
	}
}
