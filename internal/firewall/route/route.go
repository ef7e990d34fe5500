//go:build linux

// Package route is the fallback engine used when ipset/iptables are missing:
// every member becomes a kernel blackhole route. There are no real chains or
// sets at this level, so their existence and membership are tracked in a
// state file under the state dir.
package route

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"

	"github.com/vishvananda/netlink"

	"netban/internal/firewall"
)

type routeAPI interface {
	Add(dst *net.IPNet) error
	Del(dst *net.IPNet) error
}

type netlinkRoutes struct{}

func (netlinkRoutes) Add(dst *net.IPNet) error {
	return netlink.RouteAdd(&netlink.Route{Dst: dst, Type: syscall.RTN_BLACKHOLE})
}

func (netlinkRoutes) Del(dst *net.IPNet) error {
	return netlink.RouteDel(&netlink.Route{Dst: dst, Type: syscall.RTN_BLACKHOLE})
}

type chainState struct {
	Set    string          `json:"set"`
	Action firewall.Action `json:"action"`
}

type state struct {
	Sets   map[string][]string   `json:"sets"`
	Chains map[string]chainState `json:"chains"`
}

// Engine implements firewall.Engine on top of blackhole routes.
type Engine struct {
	routes    routeAPI
	statePath string
	st        state
}

func New(stateDir string) (*Engine, error) {
	e := &Engine{
		routes:    netlinkRoutes{},
		statePath: filepath.Join(stateDir, "blackhole.json"),
		st:        state{Sets: map[string][]string{}, Chains: map[string]chainState{}},
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load() error {
	b, err := os.ReadFile(e.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading blackhole state: %w", err)
	}
	if err := json.Unmarshal(b, &e.st); err != nil {
		return fmt.Errorf("corrupt blackhole state %s: %w", e.statePath, err)
	}
	if e.st.Sets == nil {
		e.st.Sets = map[string][]string{}
	}
	if e.st.Chains == nil {
		e.st.Chains = map[string]chainState{}
	}
	return nil
}

func (e *Engine) EnsureSet(name string) error {
	if _, ok := e.st.Sets[name]; !ok {
		e.st.Sets[name] = []string{}
	}
	return nil
}

func (e *Engine) SetExists(name string) (bool, error) {
	_, ok := e.st.Sets[name]
	return ok, nil
}

func (e *Engine) AddMembers(name string, addrs []string) (int, error) {
	members, ok := e.st.Sets[name]
	if !ok {
		return 0, &firewall.OpError{Op: "add member", Target: name, Err: fmt.Errorf("set does not exist")}
	}
	present := make(map[string]struct{}, len(members))
	for _, m := range members {
		present[m] = struct{}{}
	}
	added := 0
	for _, a := range addrs {
		if _, ok := present[a]; ok {
			continue
		}
		dst, err := parseDst(a)
		if err != nil {
			return added, &firewall.OpError{Op: "add member", Target: name, Err: err}
		}
		if err := e.routes.Add(dst); err != nil && err != syscall.EEXIST {
			return added, &firewall.OpError{Op: "blackhole route", Target: a, Err: err}
		}
		members = append(members, a)
		present[a] = struct{}{}
		added++
	}
	e.st.Sets[name] = members
	return added, nil
}

func (e *Engine) ListMembers(name string) ([]string, error) {
	members, ok := e.st.Sets[name]
	if !ok {
		return nil, &firewall.OpError{Op: "list set", Target: name, Err: fmt.Errorf("set does not exist")}
	}
	return append([]string(nil), members...), nil
}

func (e *Engine) DestroySet(name string) error {
	members, ok := e.st.Sets[name]
	if !ok {
		return nil
	}
	for _, m := range members {
		dst, err := parseDst(m)
		if err != nil {
			continue
		}
		if err := e.routes.Del(dst); err != nil && err != syscall.ESRCH {
			return &firewall.OpError{Op: "remove blackhole route", Target: m, Err: err}
		}
	}
	delete(e.st.Sets, name)
	return nil
}

// EnsureChain only records the chain: the blackhole routes installed per
// member already enforce the drop.
func (e *Engine) EnsureChain(chain, set string, action firewall.Action) error {
	if _, ok := e.st.Chains[chain]; ok {
		return nil
	}
	e.st.Chains[chain] = chainState{Set: set, Action: action}
	return nil
}

func (e *Engine) ChainExists(chain string) (bool, error) {
	_, ok := e.st.Chains[chain]
	return ok, nil
}

func (e *Engine) RemoveChain(chain string) error {
	delete(e.st.Chains, chain)
	return nil
}

func (e *Engine) Persist() error {
	if err := os.MkdirAll(filepath.Dir(e.statePath), 0o755); err != nil {
		return &firewall.OpError{Op: "persist", Target: e.statePath, Err: err}
	}
	b, err := json.MarshalIndent(e.st, "", "  ")
	if err != nil {
		return &firewall.OpError{Op: "persist", Target: e.statePath, Err: err}
	}
	if err := os.WriteFile(e.statePath, b, 0o644); err != nil {
		return &firewall.OpError{Op: "persist", Target: e.statePath, Err: err}
	}
	return nil
}

func parseDst(addr string) (*net.IPNet, error) {
	if _, n, err := net.ParseCIDR(addr); err == nil {
		return n, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	mask := net.CIDRMask(32, 32)
	if ip.To4() == nil {
		mask = net.CIDRMask(128, 128)
	}
	return &net.IPNet{IP: ip, Mask: mask}, nil
}
