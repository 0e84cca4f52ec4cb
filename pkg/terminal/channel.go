package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

// Buffer and size defaults.
const (
	MainBufferChars = 220_000 // interactive/run channels
	AuthBufferChars = 60_000  // auth subchannels

	MaxSegments     = 400
	MaxSegmentChars = 160_000

	MinCols, MaxCols = 20, 400
	MinRows, MaxRows = 5, 200

	DefaultCols = 120
	DefaultRows = 32

	// Termination protocol: SIGTERM, SIGKILL after the grace period, stop
	// waiters resolved no later than the hard deadline.
	DefaultStopGrace = 1500 * time.Millisecond
	StopDeadline     = 4 * time.Second
)

// AuthHint carries a login URL and/or device code spotted in auth output.
type AuthHint struct {
	URL  string `json:"url,omitempty"`
	Code string `json:"code,omitempty"`
	Text string `json:"text"`
}

// HintFunc scans one ANSI-stripped chunk and returns a hint or nil.
type HintFunc func(chunk string) *AuthHint

// Sink receives every event of one channel. Implementations must not block:
// a slow consumer drops itself, never the PTY.
type Sink interface {
	SendHello(st models.ChannelState)
	SendSnapshot(data string)
	SendOutput(data string)
	SendState(st models.ChannelState)
	SendExit(code *int, signal string)
	SendAuthHint(h AuthHint)
}

// Segment is one ANSI-stripped output chunk with its sequence number, kept
// for narration extraction.
type Segment struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// ExitInfo describes how a child ended. Code is nil when it was killed by a
// signal.
type ExitInfo struct {
	Code   *int
	Signal string
}

// StartSpec describes one spawn on a channel.
type StartSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // nil inherits the process environment
	Cols int      // 0 keeps the channel's current size
	Rows int
}

// ChannelOptions configures a Channel at construction.
type ChannelOptions struct {
	Target      string // provider id or run id
	Name        string // logical channel name
	BufferChars int    // ring cap, default MainBufferChars
	StopGrace   time.Duration
	Transcripts *TranscriptWriter // nil disables transcripts
	HintFunc    HintFunc          // auth subchannels only
	OnExit      func()            // called after each child exit, own goroutine
}

// Channel ties one PTY child to a bounded scrollback ring, a segment log, a
// transcript stream and a set of attached sinks. Channels are reusable:
// idle → running → idle across spawns.
type Channel struct {
	target     string
	name       string
	stopGrace  time.Duration
	transcript *TranscriptWriter
	hintFn     HintFunc
	onExit     func()
	logger     *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	ptmx        *os.File
	running     bool
	stopping    bool
	cols, rows  int
	startedAt   *time.Time
	exitedAt    *time.Time
	exitCode    *int
	exitSignal  string
	lastError   string
	ring        *RingBuffer
	sinks       map[Sink]struct{}
	outputSeq   uint64
	segments    []Segment
	segChars    int
	stopWaiters []chan struct{}
	exitCh      chan ExitInfo
	gen         int
	decorate    func(*models.ChannelState)

	writeMu sync.Mutex
}

// NewChannel creates an idle channel.
func NewChannel(opts ChannelOptions) *Channel {
	bufChars := opts.BufferChars
	if bufChars <= 0 {
		bufChars = MainBufferChars
	}
	grace := opts.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	return &Channel{
		target:     opts.Target,
		name:       opts.Name,
		stopGrace:  grace,
		transcript: opts.Transcripts,
		hintFn:     opts.HintFunc,
		onExit:     opts.OnExit,
		logger: slog.Default().With(
			"component", "terminal",
			"target", opts.Target,
			"channel", opts.Name),
		cols:  DefaultCols,
		rows:  DefaultRows,
		ring:  NewRingBuffer(bufChars),
		sinks: make(map[Sink]struct{}),
	}
}

// Target returns the owning provider or run id.
func (c *Channel) Target() string { return c.target }

// Name returns the logical channel name.
func (c *Channel) Name() string { return c.name }

// SetStateDecorator installs a hook that augments every state snapshot, e.g.
// with provider auth status. The hook runs with the channel lock held and
// must not call back into the channel.
func (c *Channel) SetStateDecorator(f func(*models.ChannelState)) {
	c.mu.Lock()
	c.decorate = f
	c.mu.Unlock()
}

var ptyProbe struct {
	once sync.Once
	ok   bool
}

// PTYAvailable reports whether a pseudo-terminal can be allocated on this
// host. Probed once.
func PTYAvailable() bool {
	ptyProbe.once.Do(func() {
		m, t, err := pty.Open()
		if err == nil {
			_ = m.Close()
			_ = t.Close()
			ptyProbe.ok = true
		}
	})
	return ptyProbe.ok
}

// Start spawns the child on a fresh PTY. Idempotent: when the channel is
// already running it returns the live exit channel unchanged. The returned
// channel receives one ExitInfo when that child ends.
func (c *Channel) Start(spec StartSpec) (<-chan ExitInfo, error) {
	if !PTYAvailable() {
		return nil, fmt.Errorf("pty: %w", fault.ErrUnavailableDependency)
	}

	c.mu.Lock()
	if c.running {
		ch := c.exitCh
		c.mu.Unlock()
		return ch, nil
	}
	if spec.Cols > 0 {
		c.cols = clampInt(spec.Cols, MinCols, MaxCols)
	}
	if spec.Rows > 0 {
		c.rows = clampInt(spec.Rows, MinRows, MaxRows)
	}
	cols, rows := c.cols, c.rows

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		c.lastError = err.Error()
		c.broadcastStateLocked()
		c.mu.Unlock()
		return nil, fmt.Errorf("spawn %s: %w: %w", spec.Path, fault.ErrSpawnFailed, err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})

	now := time.Now().UTC()
	c.cmd = cmd
	c.ptmx = ptmx
	c.running = true
	c.stopping = false
	c.startedAt = &now
	c.exitedAt = nil
	c.exitCode = nil
	c.exitSignal = ""
	c.lastError = ""
	c.gen++
	gen := c.gen
	exitCh := make(chan ExitInfo, 1)
	c.exitCh = exitCh

	readDone := make(chan struct{})
	go c.readLoop(ptmx, gen, readDone)
	go c.waitLoop(cmd, ptmx, gen, exitCh, readDone)

	c.broadcastStateLocked()
	c.mu.Unlock()

	c.logger.Info("Channel started", "path", spec.Path, "pid", cmd.Process.Pid)
	c.transcript.Append(c.target, c.name, SourceSys,
		fmt.Sprintf("spawned %s (pid %d)", spec.Path, cmd.Process.Pid))
	return exitCh, nil
}

// Write sends data to the PTY master. Fails when the channel is idle.
func (c *Channel) Write(data string) error {
	c.mu.Lock()
	if !c.running || c.ptmx == nil {
		c.mu.Unlock()
		return fmt.Errorf("channel %s/%s: %w", c.target, c.name, fault.ErrSessionNotRunning)
	}
	ptmx := c.ptmx
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err := ptmx.WriteString(data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	c.transcript.Append(c.target, c.name, SourceIn, data)
	return nil
}

// Resize clamps and applies a new terminal size. The size is remembered for
// future spawns even when the channel is idle.
func (c *Channel) Resize(cols, rows int) error {
	cols = clampInt(cols, MinCols, MaxCols)
	rows = clampInt(rows, MinRows, MaxRows)

	c.mu.Lock()
	c.cols, c.rows = cols, rows
	ptmx := c.ptmx
	running := c.running
	c.mu.Unlock()

	if !running || ptmx == nil {
		return nil
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	return nil
}

// Inject feeds service-generated text through the channel pipeline as if it
// were child output: ring, segments, sinks and transcript (with the given
// source tag). Used for orchestrator progress notes on run channels.
func (c *Channel) Inject(source, text string) {
	if text == "" {
		return
	}
	stripped := StripANSI(text)

	c.mu.Lock()
	c.ring.Push(text)
	c.outputSeq++
	seq := c.outputSeq
	if stripped != "" {
		c.appendSegmentLocked(seq, stripped)
	}
	for s := range c.sinks {
		s.SendOutput(text)
	}
	c.mu.Unlock()

	c.transcript.Append(c.target, c.name, source, stripped)
}

// Stop terminates the child: SIGTERM, SIGKILL after the grace period. It
// returns once the child has exited or the hard deadline passed. Idempotent
// on idle channels.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if !c.running || c.cmd == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	waiter := make(chan struct{})
	c.stopWaiters = append(c.stopWaiters, waiter)
	proc := c.cmd.Process
	c.broadcastStateLocked()
	c.mu.Unlock()

	// The hard deadline resolves waiters even if the exit handler never
	// fires, whichever comes first.
	deadline := time.AfterFunc(StopDeadline, c.resolveStopWaiters)
	defer deadline.Stop()

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone; the exit handler will settle state.
		c.logger.Debug("SIGTERM delivery failed", "error", err)
	}

	select {
	case <-waiter:
		return nil
	case <-time.After(c.stopGrace):
	}

	c.logger.Warn("Child ignored SIGTERM, killing", "grace", c.stopGrace)
	_ = proc.Kill()

	select {
	case <-waiter:
	case <-time.After(StopDeadline):
	}
	return nil
}

func (c *Channel) resolveStopWaiters() {
	c.mu.Lock()
	waiters := c.stopWaiters
	c.stopWaiters = nil
	c.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Attach sends hello plus the reconnect snapshot and registers the sink.
// The three steps happen under the channel lock so no output published after
// the snapshot can be missed.
func (c *Channel) Attach(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.SendHello(c.stateLocked())
	if dump := c.ring.Dump(); dump != "" {
		s.SendSnapshot(dump)
	}
	c.sinks[s] = struct{}{}
}

// Detach removes the sink and broadcasts a state update to the remaining
// ones.
func (c *Channel) Detach(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sinks, s)
	c.broadcastStateLocked()
}

// BroadcastState pushes the current snapshot to every attached sink.
func (c *Channel) BroadcastState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastStateLocked()
}

// State returns the channel's observable snapshot.
func (c *Channel) State() models.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Running reports whether a child is live.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// OutputSeq returns the current output sequence counter.
func (c *Channel) OutputSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputSeq
}

// SegmentsSince returns all segments with Seq > seq, oldest first.
func (c *Channel) SegmentsSince(seq uint64) []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Segment
	for _, s := range c.segments {
		if s.Seq > seq {
			out = append(out, s)
		}
	}
	return out
}

// Dump returns the full scrollback.
func (c *Channel) Dump() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.Dump()
}

// ── internals ───────────────────────────────────────────────

func (c *Channel) readLoop(ptmx *os.File, gen int, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			c.ingest(string(buf[:n]), gen)
		}
		if err != nil {
			// EIO is the normal end of a PTY stream.
			return
		}
	}
}

func (c *Channel) ingest(chunk string, gen int) {
	stripped := StripANSI(chunk)
	var hint *AuthHint
	if c.hintFn != nil && stripped != "" {
		hint = c.hintFn(stripped)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.ring.Push(chunk)
	c.outputSeq++
	seq := c.outputSeq
	if stripped != "" {
		c.appendSegmentLocked(seq, stripped)
	}
	for s := range c.sinks {
		s.SendOutput(chunk)
		if hint != nil {
			s.SendAuthHint(*hint)
		}
	}
	c.mu.Unlock()

	if stripped != "" {
		c.transcript.Append(c.target, c.name, SourceOut, stripped)
	}
}

func (c *Channel) appendSegmentLocked(seq uint64, text string) {
	c.segments = append(c.segments, Segment{Seq: seq, Time: time.Now().UTC(), Text: text})
	c.segChars += len(text)
	for (len(c.segments) > MaxSegments || c.segChars > MaxSegmentChars) && len(c.segments) > 1 {
		c.segChars -= len(c.segments[0].Text)
		c.segments = c.segments[1:]
	}
}

func (c *Channel) waitLoop(cmd *exec.Cmd, ptmx *os.File, gen int, exitCh chan ExitInfo, readDone <-chan struct{}) {
	_ = cmd.Wait()
	// Let the reader drain whatever the PTY still buffers.
	select {
	case <-readDone:
	case <-time.After(500 * time.Millisecond):
	}
	_ = ptmx.Close()

	info := exitInfoOf(cmd)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		exitCh <- info
		close(exitCh)
		return
	}
	now := time.Now().UTC()
	c.running = false
	c.stopping = false
	c.cmd = nil
	c.ptmx = nil
	c.exitedAt = &now
	c.exitCode = info.Code
	c.exitSignal = info.Signal
	waiters := c.stopWaiters
	c.stopWaiters = nil
	for s := range c.sinks {
		s.SendExit(info.Code, info.Signal)
	}
	c.broadcastStateLocked()
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	exitCh <- info
	close(exitCh)

	c.logger.Info("Channel exited", "code", intOrNil(info.Code), "signal", info.Signal)
	c.transcript.Append(c.target, c.name, SourceSys, exitNote(info))

	if c.onExit != nil {
		go c.onExit()
	}
}

func (c *Channel) broadcastStateLocked() {
	st := c.stateLocked()
	for s := range c.sinks {
		s.SendState(st)
	}
}

func (c *Channel) stateLocked() models.ChannelState {
	st := models.ChannelState{
		Target:     c.target,
		Channel:    c.name,
		Running:    c.running,
		Stopping:   c.stopping,
		Cols:       c.cols,
		Rows:       c.rows,
		StartedAt:  c.startedAt,
		ExitedAt:   c.exitedAt,
		ExitCode:   c.exitCode,
		ExitSignal: c.exitSignal,
		LastError:  c.lastError,
		OutputSeq:  c.outputSeq,
		BufferSize: c.ring.Size(),
	}
	if c.decorate != nil {
		c.decorate(&st)
	}
	return st
}

func exitInfoOf(cmd *exec.Cmd) ExitInfo {
	ps := cmd.ProcessState
	if ps == nil {
		return ExitInfo{}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitInfo{Signal: unix.SignalName(ws.Signal())}
	}
	code := ps.ExitCode()
	return ExitInfo{Code: &code}
}

func exitNote(info ExitInfo) string {
	if info.Signal != "" {
		return "process terminated by " + info.Signal
	}
	if info.Code != nil {
		return fmt.Sprintf("process exited with code %d", *info.Code)
	}
	return "process exited"
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
