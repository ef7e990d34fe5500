package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// runner executes an external command and returns its combined output.
type runner func(name string, args ...string) (string, error)

func execRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %v: %w: %s", name, args, err, string(out))
	}
	return string(out), nil
}

// Restorer reloads persisted filter state at boot: the ipset dump first so
// the sets exist before the rules that reference them.
type Restorer struct {
	stateDir string
	run      runner
}

func NewRestorer(stateDir string) *Restorer {
	return &Restorer{stateDir: stateDir, run: execRunner}
}

// Restore loads whatever dumps are present. A missing dump file means there
// was nothing enforced at last persist and is not an error.
func (r *Restorer) Restore() error {
	ipsetFile := filepath.Join(r.stateDir, "ipset.rules")
	if _, err := os.Stat(ipsetFile); err == nil {
		if _, err := r.run("ipset", "restore", "-exist", "-file", ipsetFile); err != nil {
			return fmt.Errorf("restoring address sets: %w", err)
		}
		log.Info("restored address sets", "file", ipsetFile)
	}

	rulesFile := filepath.Join(r.stateDir, "rules.v4")
	if _, err := os.Stat(rulesFile); err == nil {
		if _, err := r.run("iptables-restore", "--noflush", rulesFile); err != nil {
			return fmt.Errorf("restoring filter rules: %w", err)
		}
		log.Info("restored filter rules", "file", rulesFile)
	}

	return nil
}
