package service

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// DependencyError means a required host package is missing and could not be
// installed automatically.
type DependencyError struct {
	Package string
	Hint    string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependency %q: %s", e.Package, e.Hint)
}

// pkgManager is one supported host package manager and its install verb.
type pkgManager struct {
	bin  string
	args []string
}

var managers = []pkgManager{
	{"apt-get", []string{"install", "-y"}},
	{"dnf", []string{"install", "-y"}},
	{"yum", []string{"install", "-y"}},
}

// Deps maps the binaries the filter engine shells out to onto the package
// that provides each one (same name on Debian and RHEL families).
var Deps = map[string]string{
	"ipset":    "ipset",
	"iptables": "iptables",
}

// EnsureDeps checks that every engine binary is on PATH and installs the
// missing ones through the first package manager found on the host.
func EnsureDeps(lookPath func(string) (string, error), run runner) error {
	var missing []string
	for bin, pkg := range Deps {
		if _, err := lookPath(bin); err != nil {
			missing = append(missing, pkg)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	mgr, ok := detectManager(lookPath)
	if !ok {
		return &DependencyError{
			Package: strings.Join(missing, ", "),
			Hint:    "no supported package manager found, install manually",
		}
	}

	for _, pkg := range missing {
		log.Info("installing host package", "package", pkg, "manager", mgr.bin)
		args := append(append([]string{}, mgr.args...), pkg)
		if _, err := run(mgr.bin, args...); err != nil {
			return &DependencyError{
				Package: pkg,
				Hint:    fmt.Sprintf("%s failed: %v", mgr.bin, err),
			}
		}
	}
	return nil
}

// EnsureSystemDeps is EnsureDeps against the real host.
func EnsureSystemDeps() error {
	return EnsureDeps(exec.LookPath, execRunner)
}

func detectManager(lookPath func(string) (string, error)) (pkgManager, bool) {
	for _, m := range managers {
		if _, err := lookPath(m.bin); err == nil {
			return m, true
		}
	}
	return pkgManager{}, false
}
