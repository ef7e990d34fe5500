package ipt

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/coreos/go-iptables/iptables"

	"netban/internal/firewall"
)

const table = "filter"

// runner executes an external command and returns combined output. Tests
// substitute a recorder.
type runner func(name string, args ...string) (string, error)

func execRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// chainAPI is the slice of go-iptables the engine uses, faked in tests.
type chainAPI interface {
	ChainExists(table, chain string) (bool, error)
	NewChain(table, chain string) error
	AppendUnique(table, chain string, rulespec ...string) error
	Insert(table, chain string, pos int, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
	ClearChain(table, chain string) error
	DeleteChain(table, chain string) error
}

// Engine drives ipset for address sets and iptables for chains and rules.
type Engine struct {
	ipt      chainAPI
	run      runner
	globals  []string
	stateDir string
}

// New returns the ipset+iptables engine, or firewall.ErrUnavailable when the
// host lacks the tooling.
func New(globals []string, stateDir string) (*Engine, error) {
	if _, err := exec.LookPath("ipset"); err != nil {
		return nil, fmt.Errorf("%w: ipset not in PATH", firewall.ErrUnavailable)
	}
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", firewall.ErrUnavailable, err)
	}
	return &Engine{ipt: ipt, run: execRunner, globals: globals, stateDir: stateDir}, nil
}

// --- address sets (ipset) ---

func (e *Engine) EnsureSet(name string) error {
	// hash:net takes both plain addresses and subnets.
	if _, err := e.run("ipset", "create", name, "hash:net", "-exist"); err != nil {
		return &firewall.OpError{Op: "create set", Target: name, Err: err}
	}
	return nil
}

func (e *Engine) SetExists(name string) (bool, error) {
	out, err := e.run("ipset", "list", name, "-name")
	if err == nil {
		return true, nil
	}
	// only a missing set means "absent"; a broken ipset must not look like one
	if strings.Contains(out, "does not exist") || strings.Contains(err.Error(), "does not exist") {
		return false, nil
	}
	return false, &firewall.OpError{Op: "check set", Target: name, Err: err}
}

func (e *Engine) AddMembers(name string, addrs []string) (int, error) {
	added := 0
	for _, a := range addrs {
		if _, err := e.run("ipset", "test", name, a); err == nil {
			continue // already a member
		}
		if _, err := e.run("ipset", "add", name, a); err != nil {
			return added, &firewall.OpError{Op: "add member", Target: name, Err: err}
		}
		added++
	}
	return added, nil
}

func (e *Engine) ListMembers(name string) ([]string, error) {
	out, err := e.run("ipset", "list", name)
	if err != nil {
		return nil, &firewall.OpError{Op: "list set", Target: name, Err: err}
	}
	return parseMembers(out), nil
}

func (e *Engine) DestroySet(name string) error {
	ok, err := e.SetExists(name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := e.run("ipset", "destroy", name); err != nil {
		return &firewall.OpError{Op: "destroy set", Target: name, Err: err}
	}
	return nil
}

// parseMembers pulls the entries that follow the "Members:" header in
// `ipset list` output.
func parseMembers(out string) []string {
	var members []string
	in := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "Members:" {
			in = true
			continue
		}
		if !in || line == "" {
			continue
		}
		// entries may carry options after the address
		members = append(members, strings.Fields(line)[0])
	}
	return members
}

// --- chains (iptables) ---

func (e *Engine) EnsureChain(chain, set string, action firewall.Action) error {
	exists, err := e.ipt.ChainExists(table, chain)
	if err != nil {
		return &firewall.OpError{Op: "check chain", Target: chain, Err: err}
	}
	if exists {
		// Existing chain keeps its action; changing it takes an unban first.
		return nil
	}
	if err := e.ipt.NewChain(table, chain); err != nil {
		return &firewall.OpError{Op: "create chain", Target: chain, Err: err}
	}
	rule := []string{"-m", "set", "--match-set", set, "dst", "-j", string(action)}
	if err := e.ipt.AppendUnique(table, chain, rule...); err != nil {
		return &firewall.OpError{Op: "add rule", Target: chain, Err: err}
	}
	for _, g := range e.globals {
		if err := e.ipt.Insert(table, g, 1, "-j", chain); err != nil {
			return &firewall.OpError{Op: "attach jump", Target: g, Err: err}
		}
	}
	return nil
}

func (e *Engine) ChainExists(chain string) (bool, error) {
	exists, err := e.ipt.ChainExists(table, chain)
	if err != nil {
		return false, &firewall.OpError{Op: "check chain", Target: chain, Err: err}
	}
	return exists, nil
}

func (e *Engine) RemoveChain(chain string) error {
	for _, g := range e.globals {
		if err := e.ipt.DeleteIfExists(table, g, "-j", chain); err != nil {
			return &firewall.OpError{Op: "detach jump", Target: g, Err: err}
		}
	}
	exists, err := e.ipt.ChainExists(table, chain)
	if err != nil {
		return &firewall.OpError{Op: "check chain", Target: chain, Err: err}
	}
	if !exists {
		return nil
	}
	if err := e.ipt.ClearChain(table, chain); err != nil {
		return &firewall.OpError{Op: "flush chain", Target: chain, Err: err}
	}
	if err := e.ipt.DeleteChain(table, chain); err != nil {
		return &firewall.OpError{Op: "delete chain", Target: chain, Err: err}
	}
	return nil
}

// --- persistence ---

// Persist dumps set and rule state into the state dir. The boot-restore
// service replays these files with `ipset restore` and `iptables-restore`.
func (e *Engine) Persist() error {
	if err := os.MkdirAll(e.stateDir, 0o755); err != nil {
		return &firewall.OpError{Op: "persist", Target: e.stateDir, Err: err}
	}
	if _, err := e.run("ipset", "save", "-file", filepath.Join(e.stateDir, "ipset.rules")); err != nil {
		return &firewall.OpError{Op: "persist", Target: "ipset", Err: err}
	}
	out, err := e.run("iptables-save")
	if err != nil {
		return &firewall.OpError{Op: "persist", Target: "iptables", Err: err}
	}
	if err := os.WriteFile(filepath.Join(e.stateDir, "rules.v4"), []byte(out), 0o644); err != nil {
		return &firewall.OpError{Op: "persist", Target: "rules.v4", Err: err}
	}
	return nil
}
