package firewall

import (
	"errors"
	"fmt"
)

// Action is what a list's chain does with matched traffic.
type Action string

const (
	ActionDrop   Action = "DROP"
	ActionReject Action = "REJECT"
	ActionAccept Action = "ACCEPT"
)

// SetName derives the address-set name for a list id.
func SetName(listID string) string { return listID + "_set" }

// ChainName derives the filter-chain name for a list id.
func ChainName(listID string) string { return listID + "_chain" }

// ErrUnavailable is returned by engine constructors when the required kernel
// tooling is missing from the host.
var ErrUnavailable = errors.New("no usable packet-filter backend on this host")

// OpError wraps a rejected engine mutation with the operation and its target
// so the CLI can surface the engine's own message verbatim.
type OpError struct {
	Op     string
	Target string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Engine is the narrow surface the reconciler drives. Implementations mutate
// kernel packet-filter state; tests use a fake.
type Engine interface {
	// EnsureSet creates the named address set if absent.
	EnsureSet(name string) error
	// SetExists reports whether the named set exists.
	SetExists(name string) (bool, error)
	// AddMembers inserts each address that is not already in the set and
	// returns how many were actually added.
	AddMembers(name string, addrs []string) (int, error)
	// ListMembers returns current set membership.
	ListMembers(name string) ([]string, error)
	// DestroySet removes the set. The caller guarantees no chain still
	// references it.
	DestroySet(name string) error

	// EnsureChain creates the chain, its match rule against set, and one
	// jump rule per configured global chain. No-op when the chain exists.
	EnsureChain(chain, set string, action Action) error
	// ChainExists reports whether the chain exists.
	ChainExists(chain string) (bool, error)
	// RemoveChain detaches the jump rules (missing ones ignored), flushes
	// and deletes the chain.
	RemoveChain(chain string) error

	// Persist writes current rule and set state to durable storage. Called
	// once per successful mutation batch, never per rule.
	Persist() error
}
