package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// DefaultWriteTimeout bounds one WebSocket send. A sink that cannot take a
// frame within this window is considered broken and detached.
const DefaultWriteTimeout = 10 * time.Second

// Gateway owns one WebSocket connection attached to one channel. It is the
// terminal.Sink for that channel: every sink method serializes a frame onto
// the socket. Writes are serialized by a mutex; a failed write cancels the
// connection so the read loop unwinds and detaches. Broken sinks never
// propagate errors into the PTY data path.
type Gateway struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// NewGateway wraps an accepted WebSocket connection.
func NewGateway(parentCtx context.Context, conn *websocket.Conn, writeTimeout time.Duration) *Gateway {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	return &Gateway{
		id:           id,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		logger:       slog.Default().With("component", "ws-gateway", "connection_id", id),
		writeTimeout: writeTimeout,
	}
}

// Serve attaches the gateway to the channel and processes client frames
// until the socket closes. Blocks. The channel keeps streaming to other
// sinks regardless of how this connection ends.
func (g *Gateway) Serve(ch *terminal.Channel) {
	ch.Attach(g)
	defer func() {
		ch.Detach(g)
		g.cancel()
		_ = g.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := g.conn.Read(g.ctx)
		if err != nil {
			return
		}
		msg, err := DecodeClientMessage(data)
		if err != nil {
			g.logger.Warn("Invalid WebSocket message", "error", err)
			g.send(ErrorMsg("invalid message"))
			continue
		}
		g.dispatch(ch, msg)
	}
}

func (g *Gateway) dispatch(ch *terminal.Channel, msg ClientMessage) {
	switch msg.Type {
	case TypePing:
		g.send(Pong(msg.TS))
	case TypeInput:
		if err := ch.Write(msg.Data); err != nil {
			g.send(ErrorMsg(err.Error()))
		}
	case TypeResize:
		if err := ch.Resize(msg.Cols, msg.Rows); err != nil {
			g.send(ErrorMsg(err.Error()))
		}
	}
}

// terminal.Sink implementation.

// SendHello implements terminal.Sink.
func (g *Gateway) SendHello(st models.ChannelState) { g.send(Hello(st)) }

// SendSnapshot implements terminal.Sink.
func (g *Gateway) SendSnapshot(data string) { g.send(Snapshot(data)) }

// SendOutput implements terminal.Sink.
func (g *Gateway) SendOutput(data string) { g.send(Output(data)) }

// SendState implements terminal.Sink.
func (g *Gateway) SendState(st models.ChannelState) { g.send(State(st)) }

// SendExit implements terminal.Sink.
func (g *Gateway) SendExit(code *int, signal string) { g.send(Exit(code, signal)) }

// SendAuthHint implements terminal.Sink.
func (g *Gateway) SendAuthHint(h terminal.AuthHint) { g.send(AuthHintMsg(h)) }

func (g *Gateway) send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		g.logger.Warn("Failed to marshal WebSocket message", "message_type", fmt.Sprintf("%T", msg), "error", err)
		return
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(g.ctx, g.writeTimeout)
	defer cancel()
	if err := g.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		g.logger.Debug("WebSocket write failed, dropping connection", "error", err)
		g.cancel()
	}
}
