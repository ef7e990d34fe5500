package reconcile

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"netban/internal/banlist"
	"netban/internal/firewall"
	"netban/internal/resolver"
)

// Resolver is the slice of the domain resolver the reconciler needs.
type Resolver interface {
	Resolve(ctx context.Context, domains []string) ([]resolver.Address, error)
}

// Reconciler drives the filter engine toward the target state (enforced or
// unenforced) for one ban list at a time. All operations are sequential;
// a lock file keeps concurrent invocations out of the critical section.
type Reconciler struct {
	engine  firewall.Engine
	resolve Resolver
	action  firewall.Action
	lock    *flock
}

func New(engine firewall.Engine, res Resolver, action firewall.Action, runDir string) *Reconciler {
	return &Reconciler{
		engine:  engine,
		resolve: res,
		action:  action,
		lock:    newLock(runDir),
	}
}

// Status is the read-only view of one list's enforcement state.
type Status struct {
	ListID  string
	Active  bool
	Members []string
}

// Ban enforces blocking for the list. When set and chain both already exist
// the list is treated as enforced and nothing is re-resolved; a half-present
// pairing (crash leftovers) is torn down first and rebuilt from scratch.
func (r *Reconciler) Ban(ctx context.Context, list *banlist.BanList) error {
	if err := r.lock.acquire(); err != nil {
		return err
	}
	defer r.lock.release()

	set := firewall.SetName(list.ID)
	chain := firewall.ChainName(list.ID)

	intact, err := r.repair(list.ID)
	if err != nil {
		return err
	}
	if intact {
		log.Info("list already enforced, nothing to do", "list", list.ID)
		return nil
	}

	log.Info("resolving list domains", "list", list.ID, "domains", len(list.Domains))
	addrs, err := r.resolve.Resolve(ctx, list.Domains)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("list %q: no domain resolved to an address", list.ID)
	}

	if err := r.engine.EnsureSet(set); err != nil {
		return err
	}
	members := make([]string, len(addrs))
	for i, a := range addrs {
		members[i] = a.IP
	}
	added, err := r.engine.AddMembers(set, members)
	if err != nil {
		return err
	}
	log.Info("populated address set", "set", set, "resolved", len(members), "added", added)

	if err := r.engine.EnsureChain(chain, set, r.action); err != nil {
		return err
	}
	log.Info("installed filter chain", "chain", chain, "action", r.action)

	if err := r.engine.Persist(); err != nil {
		return err
	}
	return nil
}

// Unban removes enforcement entirely: chain first, then set, then persist.
// Safe to call whatever state the pairing is in.
func (r *Reconciler) Unban(listID string) error {
	if err := r.lock.acquire(); err != nil {
		return err
	}
	defer r.lock.release()

	chain := firewall.ChainName(listID)
	set := firewall.SetName(listID)

	if err := r.engine.RemoveChain(chain); err != nil {
		return err
	}
	if err := r.engine.DestroySet(set); err != nil {
		return err
	}
	log.Info("removed enforcement", "list", listID)

	return r.engine.Persist()
}

// Status reports enforcement state without mutating anything.
func (r *Reconciler) Status(listID string) (*Status, error) {
	active, err := r.engine.ChainExists(firewall.ChainName(listID))
	if err != nil {
		return nil, err
	}
	st := &Status{ListID: listID, Active: active}
	if !active {
		return st, nil
	}
	if ok, _ := r.engine.SetExists(firewall.SetName(listID)); ok {
		members, err := r.engine.ListMembers(firewall.SetName(listID))
		if err != nil {
			return nil, err
		}
		st.Members = members
	}
	return st, nil
}

// repair restores the set/chain pairing invariant before a ban. Returns true
// when both halves exist (list fully enforced). When only one half exists the
// leftover is removed so the caller starts clean.
func (r *Reconciler) repair(listID string) (bool, error) {
	set := firewall.SetName(listID)
	chain := firewall.ChainName(listID)

	setOK, err := r.engine.SetExists(set)
	if err != nil {
		return false, err
	}
	chainOK, err := r.engine.ChainExists(chain)
	if err != nil {
		return false, err
	}

	if setOK && chainOK {
		return true, nil
	}
	if setOK != chainOK {
		log.Warn("set/chain pairing broken, tearing down leftovers", "list", listID, "set", setOK, "chain", chainOK)
		if err := r.engine.RemoveChain(chain); err != nil {
			return false, err
		}
		if err := r.engine.DestroySet(set); err != nil {
			return false, err
		}
	}
	return false, nil
}
