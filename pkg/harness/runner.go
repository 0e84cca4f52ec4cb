package harness

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
	"github.com/cruzjc/pi5-dashboard/pkg/terminal"
)

// execResult is one finished subprocess: exit disposition plus the capped
// raw and ANSI-stripped output accumulators.
type execResult struct {
	Code   int
	Signal string
	Raw    string
	Plain  string
}

// captureSink accumulates channel output during one job, bounded per stream.
// It ignores every non-output event.
type captureSink struct {
	mu    sync.Mutex
	max   int
	raw   strings.Builder
	plain strings.Builder
}

func newCaptureSink(max int) *captureSink {
	return &captureSink{max: max}
}

func (c *captureSink) SendOutput(data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw.Len() < c.max {
		c.raw.WriteString(clip(data, c.max-c.raw.Len()))
	}
	plain := terminal.StripANSI(data)
	if c.plain.Len() < c.max {
		c.plain.WriteString(clip(plain, c.max-c.plain.Len()))
	}
}

func (c *captureSink) SendHello(models.ChannelState)  {}
func (c *captureSink) SendSnapshot(string)            {}
func (c *captureSink) SendState(models.ChannelState)  {}
func (c *captureSink) SendExit(*int, string)          {}
func (c *captureSink) SendAuthHint(terminal.AuthHint) {}

func (c *captureSink) result() (raw, plain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw.String(), c.plain.String()
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// runInChannel spawns one subprocess on the named run channel, streams its
// output through the usual channel pipeline, and waits for it to exit. The
// spawn registers a cancel function in the run's active-jobs table; run
// cancellation stops the child via the channel's terminate protocol. With
// allowNonZero false a non-zero exit is a CommandExitError.
func (s *Service) runInChannel(r *Run, channelName string, spec terminal.StartSpec, allowNonZero bool) (execResult, error) {
	ch, err := r.Channel(channelName)
	if err != nil {
		return execResult{}, err
	}

	sink := newCaptureSink(s.limits.RunnerCaptureBytes)
	ch.Attach(sink)
	defer ch.Detach(sink)

	exitCh, err := ch.Start(spec)
	if err != nil {
		return execResult{}, err
	}

	jobID := uuid.New().String()
	stopped := make(chan struct{})
	r.registerJob(jobID, func() {
		go func() {
			_ = ch.Stop()
			close(stopped)
		}()
	})
	defer r.releaseJob(jobID)

	var info terminal.ExitInfo
	select {
	case info = <-exitCh:
	case <-r.ctx.Done():
		// Cancellation: the job's cancel func (or this fallback) stops the
		// child; the exit handler still resolves exitCh.
		select {
		case <-stopped:
		case <-time.After(50 * time.Millisecond):
			_ = ch.Stop()
		}
		select {
		case info = <-exitCh:
		case <-time.After(terminal.StopDeadline + time.Second):
		}
		raw, plain := sink.result()
		return execResult{Raw: raw, Plain: plain, Signal: info.Signal}, fault.ErrCancelled
	}

	raw, plain := sink.result()
	res := execResult{Raw: raw, Plain: plain, Signal: info.Signal}
	if info.Code != nil {
		res.Code = *info.Code
	}
	if !allowNonZero && (info.Code == nil || *info.Code != 0) {
		return res, fault.NewCommandExit(res.Code, res.Signal, tail(strings.TrimSpace(plain), 2000))
	}
	return res, nil
}

// runCLI executes the assistant CLI non-interactively (one-shot exec with
// sandbox bypass) in dir, streaming into the named channel.
func (s *Service) runCLI(r *Run, channelName, dir, prompt string) (execResult, error) {
	return s.runInChannel(r, channelName, terminal.StartSpec{
		Path: s.cliBinary,
		Args: cliExecArgs(prompt),
		Dir:  dir,
		Env:  jobEnv(),
	}, false)
}

// runShell executes one verification-style command through bash -lc in dir.
// Non-zero exits are reported in the result, not as errors.
func (s *Service) runShell(r *Run, channelName, dir, command string) (execResult, error) {
	return s.runInChannel(r, channelName, terminal.StartSpec{
		Path: "/bin/bash",
		Args: []string{"-lc", command},
		Dir:  dir,
		Env:  jobEnv(),
	}, true)
}

// cliExecArgs builds the non-interactive invocation of the assistant CLI.
func cliExecArgs(prompt string) []string {
	return []string{
		"exec",
		"--dangerously-bypass-approvals-and-sandbox",
		"--skip-git-repo-check",
		prompt,
	}
}

func jobEnv() []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, "TERM=") {
			filtered = append(filtered, kv)
		}
	}
	return append(filtered, "TERM=xterm-256color")
}

// describeExit renders an exit disposition for journals and artifacts.
func describeExit(res execResult) string {
	if res.Signal != "" {
		return fmt.Sprintf("terminated by %s", res.Signal)
	}
	return fmt.Sprintf("exit %d", res.Code)
}
