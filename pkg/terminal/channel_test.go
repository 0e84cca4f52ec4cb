package terminal

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

type recordedExit struct {
	code   *int
	signal string
}

// recordingSink captures every event in arrival order.
type recordingSink struct {
	mu        sync.Mutex
	hellos    []models.ChannelState
	snapshots []string
	outputs   []string
	states    []models.ChannelState
	exits     []recordedExit
	hints     []AuthHint
}

func (r *recordingSink) SendHello(st models.ChannelState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hellos = append(r.hellos, st)
}

func (r *recordingSink) SendSnapshot(data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, data)
}

func (r *recordingSink) SendOutput(data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, data)
}

func (r *recordingSink) SendState(st models.ChannelState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recordingSink) SendExit(code *int, signal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, recordedExit{code: code, signal: signal})
}

func (r *recordingSink) SendAuthHint(h AuthHint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints = append(r.hints, h)
}

func (r *recordingSink) joinedOutput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.outputs, "")
}

func (r *recordingSink) firstSnapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return ""
	}
	return r.snapshots[0]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestChannelSnapshotThenTail(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main", BufferChars: 64})

	c.Inject(SourceSys, "early ")
	c.Inject(SourceSys, "scrollback. ")

	sink := &recordingSink{}
	c.Attach(sink)

	c.Inject(SourceSys, "tail one. ")
	c.Inject(SourceSys, "tail two.")

	require.Len(t, sink.hellos, 1)
	assert.Equal(t, "codex", sink.hellos[0].Target)
	assert.Equal(t, "main", sink.hellos[0].Channel)

	// Snapshot plus subsequent output equals the stream suffix.
	got := sink.firstSnapshot() + sink.joinedOutput()
	assert.Equal(t, "early scrollback. tail one. tail two.", got)
	assert.Equal(t, got, c.Dump())
}

func TestChannelAttachEmptyBufferSkipsSnapshot(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	sink := &recordingSink{}
	c.Attach(sink)
	assert.Len(t, sink.hellos, 1)
	assert.Empty(t, sink.snapshots)
}

func TestChannelDetachBroadcastsState(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	stay := &recordingSink{}
	leave := &recordingSink{}
	c.Attach(stay)
	c.Attach(leave)

	before := len(stay.states)
	c.Detach(leave)
	assert.Greater(t, len(stay.states), before)
}

func TestChannelWriteWhenIdle(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	err := c.Write("hello\r")
	require.Error(t, err)
	assert.ErrorContains(t, err, "not running")
}

func TestChannelResizeClampPersistsWhileIdle(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	require.NoError(t, c.Resize(1000, 1))
	st := c.State()
	assert.Equal(t, MaxCols, st.Cols)
	assert.Equal(t, MinRows, st.Rows)
}

func TestChannelSegmentsSince(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	c.Inject(SourceSys, "first")
	marker := c.OutputSeq()
	c.Inject(SourceSys, "second")
	c.Inject(SourceSys, "third")

	segs := c.SegmentsSince(marker)
	require.Len(t, segs, 2)
	assert.Equal(t, "second", segs[0].Text)
	assert.Equal(t, "third", segs[1].Text)
	assert.Empty(t, c.SegmentsSince(c.OutputSeq()))
}

func TestChannelSegmentCaps(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	for i := 0; i < MaxSegments+50; i++ {
		c.Inject(SourceSys, "x")
	}
	segs := c.SegmentsSince(0)
	assert.LessOrEqual(t, len(segs), MaxSegments)

	// A single oversized segment survives alone.
	c2 := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	c2.Inject(SourceSys, strings.Repeat("y", MaxSegmentChars+100))
	assert.Len(t, c2.SegmentsSince(0), 1)
}

func TestChannelEmptyAfterStripNotAppended(t *testing.T) {
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	c.ingest("\x1b[31m\x1b[0m", c.gen)
	assert.Empty(t, c.SegmentsSince(0))
	// Raw bytes still reach the ring for reconnect fidelity.
	assert.Equal(t, "\x1b[31m\x1b[0m", c.Dump())
}

func TestChannelHintScanOnIngest(t *testing.T) {
	urlRe := regexp.MustCompile(`https?://\S+`)
	hintFn := func(chunk string) *AuthHint {
		if m := urlRe.FindString(chunk); m != "" {
			return &AuthHint{URL: m, Text: chunk}
		}
		return nil
	}
	c := NewChannel(ChannelOptions{Target: "codex", Name: "auth", HintFunc: hintFn})
	sink := &recordingSink{}
	c.Attach(sink)

	c.ingest("visit https://example.com/device to continue\n", c.gen)
	c.ingest("plain text\n", c.gen)

	require.Len(t, sink.hints, 1)
	assert.Equal(t, "https://example.com/device", sink.hints[0].URL)
}

// ── PTY integration (skipped where no PTY can be allocated) ──

func requirePTY(t *testing.T) {
	t.Helper()
	if !PTYAvailable() {
		t.Skip("no pty available on this host")
	}
}

func TestChannelSpawnAndExit(t *testing.T) {
	requirePTY(t)
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	sink := &recordingSink{}
	c.Attach(sink)

	exitCh, err := c.Start(StartSpec{Path: "/bin/sh", Args: []string{"-c", "printf 'ready\\n'; exit 3"}})
	require.NoError(t, err)

	select {
	case info := <-exitCh:
		require.NotNil(t, info.Code)
		assert.Equal(t, 3, *info.Code)
		assert.Empty(t, info.Signal)
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	waitFor(t, func() bool { return !c.Running() }, "channel to go idle")
	st := c.State()
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 3, *st.ExitCode)
	assert.NotNil(t, st.ExitedAt)

	waitFor(t, func() bool { return strings.Contains(sink.joinedOutput(), "ready") }, "output delivery")

	sink.mu.Lock()
	exits := len(sink.exits)
	sink.mu.Unlock()
	assert.Equal(t, 1, exits)
}

func TestChannelStartIdempotent(t *testing.T) {
	requirePTY(t)
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	ch1, err := c.Start(StartSpec{Path: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	ch2, err := c.Start(StartSpec{Path: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	assert.Equal(t, ch1, ch2, "second start must return the live exit channel")

	require.NoError(t, c.Stop())
	waitFor(t, func() bool { return !c.Running() }, "stop to settle")
	st := c.State()
	assert.Equal(t, "SIGTERM", st.ExitSignal)
}

func TestChannelStopEscalatesToKill(t *testing.T) {
	requirePTY(t)
	c := NewChannel(ChannelOptions{
		Target:    "codex",
		Name:      "main",
		StopGrace: 100 * time.Millisecond,
	})
	_, err := c.Start(StartSpec{Path: "/bin/sh", Args: []string{"-c", "trap '' TERM; sleep 30"}})
	require.NoError(t, err)

	// Give the shell a moment to install the trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Stop())
	assert.Less(t, time.Since(start), StopDeadline+time.Second)

	waitFor(t, func() bool { return !c.Running() }, "kill to settle")
	st := c.State()
	assert.Equal(t, "SIGKILL", st.ExitSignal)
}

func TestChannelWriteReachesChild(t *testing.T) {
	requirePTY(t)
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	sink := &recordingSink{}
	c.Attach(sink)

	_, err := c.Start(StartSpec{Path: "/bin/sh", Args: []string{"-c", "read line; echo \"got:$line\""}})
	require.NoError(t, err)

	require.NoError(t, c.Write("ping\r"))
	waitFor(t, func() bool { return strings.Contains(sink.joinedOutput(), "got:ping") }, "echo from child")
	_ = c.Stop()
}

func TestChannelSpawnFailure(t *testing.T) {
	requirePTY(t)
	c := NewChannel(ChannelOptions{Target: "codex", Name: "main"})
	_, err := c.Start(StartSpec{Path: "/no/such/binary-xyz"})
	require.Error(t, err)
	assert.False(t, c.Running())
	assert.NotEmpty(t, c.State().LastError)
}
