package ping

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

// fakePingBinary puts a shell script named ping first on PATH.
func fakePingBinary(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script ping stub requires a unix shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ping")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake ping: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestPingArgs(t *testing.T) {
	cases := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"linux", 1500 * time.Millisecond, []string{"-n", "-c", "1", "-W", "2", "example.com"}},
		{"linux", 2 * time.Second, []string{"-n", "-c", "1", "-W", "3", "example.com"}},
		{"linux", 10 * time.Millisecond, []string{"-n", "-c", "1", "-W", "1", "example.com"}},
		{"darwin", 1500 * time.Millisecond, []string{"-n", "-c", "1", "-W", "2000", "example.com"}},
		{"darwin", 10 * time.Millisecond, []string{"-n", "-c", "1", "-W", "510", "example.com"}},
		{"windows", 2 * time.Second, []string{"-n", "1", "-w", "2500", "example.com"}},
	}

	for _, tc := range cases {
		got := pingArgs(tc.goos, "example.com", tc.timeout)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("pingArgs(%s, %v) = %v, want %v", tc.goos, tc.timeout, got, tc.want)
		}
	}
}

func TestParseDelayVariousFormats(t *testing.T) {
	testCases := []struct {
		output string
		want   time.Duration
		ok     bool
	}{
		{"64 bytes from 8.8.8.8: icmp_seq=1 ttl=58 time=12.5 ms\n", time.Duration(12.5 * float64(time.Millisecond)), true},
		{"64 bytes from 127.0.0.1: icmp_seq=1 ttl=64 time=0.045 ms", time.Duration(0.045 * float64(time.Millisecond)), true},
		{"Reply from 10.60.0.1: bytes=32 time=34ms TTL=63", 34 * time.Millisecond, true},
		{"Reply from 10.60.0.1: bytes=32 TIME=7ms TTL=63", 7 * time.Millisecond, true},
		{"Reply from 10.60.0.1: bytes=32 time<1ms TTL=64", 0, false},
		{"no time information here", 0, false},
		{"", 0, false},
		{"64 bytes from 192.0.2.1: icmp_seq=1 ttl=58 time=99999999999999999999 ms", 0, false},
		{"64 bytes from 192.0.2.1: icmp_seq=1 ttl=58 time=9223372036854.775807 ms", 0, false},
	}

	for _, tc := range testCases {
		got, ok := ParseDelay([]byte(tc.output))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseDelay(%q) = %v/%v, want %v/%v", tc.output, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsSubMillisecond(t *testing.T) {
	if !IsSubMillisecond([]byte("Reply from 10.60.0.1: bytes=32 time<1ms TTL=64")) {
		t.Fatalf("expected sub-millisecond marker to be detected")
	}
	if IsSubMillisecond([]byte("time=0.5 ms")) {
		t.Fatalf("expected parsed delay not to be flagged")
	}
}

func TestExternalPingerContextCancellation(t *testing.T) {
	pinger := NewExternalPinger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pinger.Ping(ctx, "127.0.0.1", time.Second)
	if result.Status == StatusSuccess || result.Error == nil {
		t.Fatalf("expected failure due to cancelled context, got %+v", result)
	}
}

func TestExternalPingerSuccess(t *testing.T) {
	fakePingBinary(t, `echo "64 bytes from 192.0.2.1: icmp_seq=1 ttl=58 time=23.4 ms"`)

	result := NewExternalPinger().Ping(context.Background(), "192.0.2.1", time.Second)
	if result.Status != StatusSuccess || !result.HasRTT {
		t.Fatalf("expected success with RTT, got %+v", result)
	}
	if result.RTT != time.Duration(23.4*float64(time.Millisecond)) {
		t.Fatalf("unexpected RTT %v", result.RTT)
	}
}

func TestExternalPingerSubMillisecond(t *testing.T) {
	fakePingBinary(t, `echo "Reply from 10.60.0.1: bytes=32 time<1ms TTL=64"`)

	result := NewExternalPinger().Ping(context.Background(), "10.60.0.1", time.Second)
	if result.Status != StatusSuccess || result.HasRTT || !result.SubMillisecond {
		t.Fatalf("expected success without RTT, got %+v", result)
	}
}

func TestExternalPingerNonZeroExitIsFailed(t *testing.T) {
	fakePingBinary(t, `echo "Request timeout for icmp_seq 0"; exit 1`)

	result := NewExternalPinger().Ping(context.Background(), "192.0.2.1", time.Second)
	if result.Status != StatusFailed || result.Error == nil {
		t.Fatalf("expected failed status, got %+v", result)
	}
}

func TestExternalPingerWaitingOutTimeoutIsTimeout(t *testing.T) {
	fakePingBinary(t, `sleep 1; echo "1 packets transmitted, 0 received, 100% packet loss"; exit 1`)

	result := NewExternalPinger().Ping(context.Background(), "192.0.2.1", 200*time.Millisecond)
	if result.Status != StatusTimeout || result.Error == nil {
		t.Fatalf("expected timeout status, got %+v", result)
	}
}

func TestProberReportsTimeoutForSilentHost(t *testing.T) {
	// Behaves like iputils ping: waits for its -W seconds, then exits 1.
	fakePingBinary(t, `while [ "$1" != "-W" ]; do shift; done; sleep "$2"; exit 1`)

	start := time.Now()
	out := NewProber(NewExternalPinger(), 300*time.Millisecond, nil).Probe(context.Background(), testTarget)
	elapsed := time.Since(start)

	if out.Status != StatusTimeout {
		t.Fatalf("expected timeout status, got %s (%v)", out.Status, out.Err)
	}
	if elapsed > 300*time.Millisecond+time.Second {
		t.Fatalf("probe took %v, expected it to stop near the timeout", elapsed)
	}
}

func TestExternalPingerEmptyOutputIsError(t *testing.T) {
	fakePingBinary(t, `exit 0`)

	result := NewExternalPinger().Ping(context.Background(), "192.0.2.1", time.Second)
	if result.Status != StatusError {
		t.Fatalf("expected error status, got %+v", result)
	}
}

func TestExternalPingerTimeout(t *testing.T) {
	fakePingBinary(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := NewExternalPinger().Ping(ctx, "192.0.2.1", time.Second)
	if result.Status != StatusTimeout {
		t.Fatalf("expected timeout status, got %+v", result)
	}
}

func TestExternalPingerMissingBinaryIsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH manipulation differs on windows")
	}
	t.Setenv("PATH", t.TempDir())

	result := NewExternalPinger().Ping(context.Background(), "192.0.2.1", time.Second)
	if result.Status != StatusError || result.Error == nil {
		t.Fatalf("expected error status for missing binary, got %+v", result)
	}
}

func TestMaxInt(t *testing.T) {
	if maxInt(1, 2) != 2 {
		t.Fatalf("expected maxInt to return 2")
	}
	if maxInt(5, -1) != 5 {
		t.Fatalf("expected maxInt to return 5")
	}
}
