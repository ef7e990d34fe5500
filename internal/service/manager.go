// Package service manages the boot-restore unit: a small daemon that reloads
// the persisted address sets and filter rules after a reboot, registered with
// the host init system through kardianos/service.
package service

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/kardianos/service"
)

const serviceName = "netban"

// Manager wraps the platform service (systemd unit, launchd plist, ...).
type Manager struct {
	svc service.Service
}

// program satisfies service.Interface. Start restores persisted state and
// then stays idle; there is nothing to tear down on Stop.
type program struct {
	restore func() error
}

func (p *program) Start(_ service.Service) error {
	go func() {
		if err := p.restore(); err != nil {
			log.Error("boot restore failed", "err", err)
		}
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error { return nil }

// NewManager builds the service wrapper. restore runs once when the init
// system starts the unit.
func NewManager(restore func() error) (*Manager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: "NetBan Domain Blocker",
		Description: "Restores netban address sets and filter rules at boot",
		Executable:  execPath,
		Arguments:   []string{"service", "run"},
		Option: service.KeyValue{
			"RunAtLoad": true,
		},
	}

	svc, err := service.New(&program{restore: restore}, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return &Manager{svc: svc}, nil
}

func (m *Manager) Install() error {
	if err := m.svc.Install(); err != nil {
		return fmt.Errorf("installing service: %w", err)
	}
	return nil
}

func (m *Manager) Uninstall() error {
	if err := m.svc.Uninstall(); err != nil {
		return fmt.Errorf("uninstalling service: %w", err)
	}
	return nil
}

// Run hands control to the init system's service loop (the `service run`
// entry point of the installed unit).
func (m *Manager) Run() error {
	return m.svc.Run()
}

// Status returns a human readable service state.
func (m *Manager) Status() string {
	st, err := m.svc.Status()
	if err != nil {
		return "not installed"
	}
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
