// Package systemd reports capture progress to the service manager.
package systemd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/vidbuf/internal/events"
)

// Notifier forwards capture events to systemd through sd_notify: READY
// once the stream is on, STOPPING when it goes off, and watchdog pings
// while frames keep arriving. Without NOTIFY_SOCKET every call is a no-op.
type Notifier struct {
	mu       sync.Mutex
	notify   func(state string) (bool, error)
	logger   *slog.Logger
	watchdog time.Duration
	lastPing time.Time
	unsubs   []func()
}

// NewNotifier subscribes to bus. The watchdog interval is read from the
// environment systemd sets for units with WatchdogSec.
func NewNotifier(bus *events.Bus, logger *slog.Logger) *Notifier {
	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Ignoring invalid watchdog settings", "error", err)
	}
	return newNotifier(bus, logger, watchdog, func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	})
}

func newNotifier(bus *events.Bus, logger *slog.Logger, watchdog time.Duration, notify func(string) (bool, error)) *Notifier {
	n := &Notifier{
		notify:   notify,
		logger:   logger,
		watchdog: watchdog,
	}
	n.unsubs = []func(){
		bus.Subscribe(n.onStream),
		bus.Subscribe(n.onFrame),
	}
	return n
}

// Close unsubscribes from the bus.
func (n *Notifier) Close() {
	for _, unsub := range n.unsubs {
		unsub()
	}
}

func (n *Notifier) onStream(e events.StreamStateChangedEvent) {
	if e.Streaming {
		n.send(daemon.SdNotifyReady + "\nSTATUS=Streaming from " + e.Device)
		return
	}
	n.send(daemon.SdNotifyStopping + "\nSTATUS=Stream stopped on " + e.Device)
}

// onFrame pings the watchdog at half its interval.
func (n *Notifier) onFrame(events.FrameEvent) {
	if n.watchdog <= 0 {
		return
	}
	n.mu.Lock()
	now := time.Now()
	due := n.lastPing.IsZero() || now.Sub(n.lastPing) >= n.watchdog/2
	if due {
		n.lastPing = now
	}
	n.mu.Unlock()
	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}
