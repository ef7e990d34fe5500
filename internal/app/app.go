// Package app builds the netban command tree. Each command constructor wires
// config, engine and reconciler together; main.go only registers them.
package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"netban/internal/config"
	"netban/internal/firewall"
	"netban/internal/firewall/ipt"
	"netban/internal/firewall/route"
	"netban/internal/reconcile"
	"netban/internal/resolver"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// UsageError separates bad invocations (exit 2) from runtime failures
// (exit 1).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

// WrapFlagError is installed as the root command's flag error func so flag
// parse failures come back as usage errors.
func WrapFlagError(_ *cobra.Command, err error) error {
	return &UsageError{Err: err}
}

// exactArgs is cobra.ExactArgs with the error classified as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return cfg, nil
}

func knownList(cfg *config.Config, id string) error {
	if _, ok := cfg.Lists[id]; !ok {
		return fmt.Errorf("unknown list %q, see `netban lists`", id)
	}
	return nil
}

func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("must be run as root")
	}
	return nil
}

// newEngine picks the filter backend: ipset+iptables when both are usable,
// blackhole routes otherwise.
func newEngine(cfg *config.Config) (firewall.Engine, error) {
	eng, err := ipt.New(cfg.Chains, cfg.StateDir)
	if err == nil {
		return eng, nil
	}
	if !errors.Is(err, firewall.ErrUnavailable) {
		return nil, err
	}
	log.Warn("ipset/iptables unavailable, falling back to blackhole routes")
	return route.New(cfg.StateDir)
}

func configuredAction(cfg *config.Config) firewall.Action {
	if cfg.Action == "reject" {
		return firewall.ActionReject
	}
	return firewall.ActionDrop
}

func newReconciler(cfg *config.Config, strict bool) (*reconcile.Reconciler, error) {
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	res := resolver.New(cfg.ResolveTimeout,
		resolver.WithIPv6(cfg.ResolveIPv6),
		resolver.WithStrict(strict),
	)
	return reconcile.New(eng, res, configuredAction(cfg), cfg.RunDir), nil
}
