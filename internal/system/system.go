// Package system restarts the host after a settings change or an update.
package system

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Restarter schedules a restart.
type Restarter interface {
	// RestartAfter restarts the host once delay has passed. It returns
	// immediately so the caller can finish its response.
	RestartAfter(delay time.Duration, reason string)
}

// HostRestarter reboots the machine.
type HostRestarter struct {
	log    *zap.Logger
	reboot func() error
	exit   func(code int)

	once sync.Once
}

// NewHostRestarter creates a restarter for this host.
func NewHostRestarter(log *zap.Logger) *HostRestarter {
	if log == nil {
		log = zap.NewNop()
	}
	return &HostRestarter{log: log.Named("system"), reboot: reboot, exit: exit}
}

// RestartAfter reboots after delay. Only the first request counts.
func (h *HostRestarter) RestartAfter(delay time.Duration, reason string) {
	h.once.Do(func() {
		h.log.Info("restart scheduled", zap.String("reason", reason), zap.Duration("delay", delay))
		time.AfterFunc(delay, h.restartNow)
	})
}

func (h *HostRestarter) restartNow() {
	if err := h.reboot(); err != nil {
		// Without the privilege to reboot, exit and let the supervisor
		// start a fresh process.
		h.log.Error("reboot failed, exiting", zap.Error(err))
		h.log.Sync()
		h.exit(1)
	}
}
