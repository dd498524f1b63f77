package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPingTarget = "google.com"
	pingCount         = 3
	pingWaitSeconds   = 2
	pingTimeout       = 10 * time.Second
)

var errNoPingSummary = errors.New("no round-trip summary in ping output")

// LatencyProbe measures round-trip latency to a fixed target in milliseconds.
type LatencyProbe interface {
	Probe(ctx context.Context) (float64, error)
}

// PingProbe shells out to the system ping binary.
type PingProbe struct {
	Binary  string
	Target  string
	Timeout time.Duration
}

func NewPingProbe(target string) *PingProbe {
	if target == "" {
		target = DefaultPingTarget
	}
	return &PingProbe{Binary: "ping", Target: target, Timeout: pingTimeout}
}

func (p *PingProbe) Probe(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Binary,
		"-c", strconv.Itoa(pingCount),
		"-W", strconv.Itoa(pingWaitSeconds),
		p.Target)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return 0, fmt.Errorf("ping %s: timed out after %s", p.Target, p.Timeout)
	}
	if err != nil {
		return 0, fmt.Errorf("ping %s: %w", p.Target, err)
	}
	return parsePingAverage(string(out))
}

// parsePingAverage extracts avg from summaries such as
//
//	rtt min/avg/max/mdev = 9.1/10.2/11.3/0.8 ms
//	round-trip min/avg/max = 9.1/10.2/11.3 ms
func parsePingAverage(out string) (float64, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "avg") && !strings.Contains(line, "rtt") {
			continue
		}
		_, values, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		parts := strings.Split(values, "/")
		if len(parts) < 2 {
			continue
		}
		avg, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse ping average %q: %w", parts[1], err)
		}
		return avg, nil
	}
	return 0, errNoPingSummary
}
