// Package netmonitor polls host network interfaces and reports
// availability changes to the engine's Loop, so a laptop sleep/wake or a
// Wi-Fi drop can trigger Resume/MaybeSleep the way the host OS's own
// connectivity reachability callback would on mobile (§4.G Ping & Sleep,
// §6 External Interfaces). Polling style and error wrapping are grounded
// on pulse/async/system_metrics_linux.go's gopsutil-backed stat sampling,
// generalized from periodic memory-stat collection to periodic interface
// enumeration.
package netmonitor

import (
	"context"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/teranos/mtcore/errors"
	"github.com/teranos/mtcore/logger"
)

const defaultPollInterval = 5 * time.Second

// AvailabilityFunc is invoked whenever the monitor's view of "is there at
// least one up, non-loopback interface" changes.
type AvailabilityFunc func(available bool)

// Monitor periodically samples host network interfaces via gopsutil and
// calls onChange when availability flips.
type Monitor struct {
	pollInterval time.Duration
	onChange     AvailabilityFunc

	lastKnown bool
	hasSample bool
}

// New returns a Monitor that calls onChange on every availability
// transition, polling every interval (0 selects defaultPollInterval).
func New(interval time.Duration, onChange AvailabilityFunc) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{pollInterval: interval, onChange: onChange}
}

// Run polls until ctx is cancelled. Intended to run on its own goroutine;
// it hops onto the caller's engine only through onChange, never touching
// engine state directly.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	available, err := m.sample()
	if err != nil {
		logger.Warnw("netmonitor sample failed", "err", err)
		return
	}
	m.recordSample(available)
}

// recordSample applies the debounce-on-transition logic in isolation
// from the gopsutil call, so it can be driven directly by tests.
func (m *Monitor) recordSample(available bool) {
	if m.hasSample && available == m.lastKnown {
		return
	}
	m.hasSample = true
	m.lastKnown = available

	logger.Infow("network availability changed", "available", available)
	if m.onChange != nil {
		m.onChange(available)
	}
}

// sample reports whether at least one non-loopback interface is up.
func (m *Monitor) sample() (bool, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return false, errors.Wrap(err, "failed to enumerate network interfaces")
	}

	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") {
			continue
		}
		if hasFlag(iface.Flags, "up") {
			return true, nil
		}
	}
	return false, nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
