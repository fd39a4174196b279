package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"
)

// BookingWatcher polls the config file and hands booking changes to apply.
// Other sections need a restart to take effect.
type BookingWatcher struct {
	path     string
	interval time.Duration
	apply    func(BookingConfig)
	onError  func(error)

	digest  [sha256.Size]byte
	current BookingConfig
}

// NewBookingWatcher starts from current, the booking section already in
// effect, so an unchanged file never triggers apply.
func NewBookingWatcher(path string, interval time.Duration, current BookingConfig, apply func(BookingConfig)) *BookingWatcher {
	if path == "" {
		path = DefaultPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BookingWatcher{path: path, interval: interval, current: current, apply: apply}
}

// OnError sets the handler for failed reloads. The previous rules stay in
// effect after a failure.
func (w *BookingWatcher) OnError(fn func(error)) {
	w.onError = fn
}

// Check rereads the file and reports whether the booking rules changed.
func (w *BookingWatcher) Check() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)
	if sum == w.digest {
		return false, nil
	}

	cfg, err := Load(w.path)
	if err != nil {
		return false, fmt.Errorf("reload %s: %w", w.path, err)
	}
	w.digest = sum
	if cfg.Booking == w.current {
		return false, nil
	}
	w.current = cfg.Booking
	if w.apply != nil {
		w.apply(cfg.Booking)
	}
	return true, nil
}

// Run checks the file every interval until ctx is done.
func (w *BookingWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(); err != nil && w.onError != nil {
				w.onError(err)
			}
		}
	}
}
