package ping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// binarySlack is added to the timeout handed to the ping binary so that the
// caller's deadline expires first and the probe is reported as a timeout.
const binarySlack = 500 * time.Millisecond

// Matches "time=12.3 ms" (unix and windows) and the windows "time<1ms" marker.
var timePattern = regexp.MustCompile(`(?i)time=([0-9]+(?:\.[0-9]+)?)|time<1ms`)

// ExternalPinger invokes the system ping command for environments without raw socket access.
type ExternalPinger struct {
	goos string
}

// NewExternalPinger returns a ping implementation that shells out to ping.
func NewExternalPinger() *ExternalPinger {
	return &ExternalPinger{goos: runtime.GOOS}
}

// Ping runs the system ping command and parses the RTT from stdout.
func (p *ExternalPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: contextStatus(err), Error: err}
	}

	cmd := exec.CommandContext(ctx, "ping", pingArgs(p.goos, addr, timeout)...)
	cmd.WaitDelay = 250 * time.Millisecond
	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Status: contextStatus(ctxErr), Error: fmt.Errorf("ping timeout: %w", ctxErr)}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// A binary that waited out the whole timeout without a reply timed out;
			// an early non-zero exit means the host was reported unreachable.
			if elapsed >= timeout && !timePattern.Match(out) {
				return Result{Status: StatusTimeout, Error: fmt.Errorf("ping timed out after %s: %s", elapsed.Round(time.Millisecond), firstLine(out))}
			}
			return Result{Status: StatusFailed, Error: fmt.Errorf("ping exited %d: %s", exitErr.ExitCode(), firstLine(out))}
		}
		return Result{Status: StatusError, Error: fmt.Errorf("external ping failed: %w", err)}
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return Result{Status: StatusError, Error: errors.New("external ping produced no output")}
	}

	rtt, ok := ParseDelay(out)
	return Result{Status: StatusSuccess, RTT: rtt, HasRTT: ok, SubMillisecond: IsSubMillisecond(out)}
}

// ParseDelay extracts the round-trip time from ping output. The sub-millisecond
// "time<1ms" form is reported as unknown rather than zero.
func ParseDelay(output []byte) (time.Duration, bool) {
	matches := timePattern.FindSubmatch(output)
	if matches == nil || len(matches[1]) == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil || value < 0 {
		return 0, false
	}
	// Values beyond the time.Duration range would wrap negative.
	ns := math.Round(value * float64(time.Millisecond))
	if ns >= math.MaxInt64 {
		return 0, false
	}
	return time.Duration(ns), true
}

// IsSubMillisecond reports whether output carries the "time<1ms" marker.
func IsSubMillisecond(output []byte) bool {
	matches := timePattern.FindSubmatch(output)
	return matches != nil && len(matches[1]) == 0
}

func pingArgs(goos, addr string, timeout time.Duration) []string {
	timeout += binarySlack
	switch goos {
	case "windows":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), addr}
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(math.Ceil(timeout.Seconds())))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func contextStatus(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusError
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return "no output"
	}
	return line
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
