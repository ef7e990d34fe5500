package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"netban/internal/banlist"
	"netban/internal/service"
)

// NewInstallCommand sets the host up: required packages, the binary under
// /usr/local/bin and the boot-restore service.
func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install netban and its boot-restore service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := service.EnsureSystemDeps(); err != nil {
				return err
			}
			if err := service.InstallBinary(); err != nil {
				return err
			}

			mgr, err := newServiceManager(cfg.StateDir)
			if err != nil {
				return err
			}
			if err := mgr.Install(); err != nil {
				return err
			}
			fmt.Println("installed; persisted rules will be restored at boot")
			return nil
		},
	}
}

// NewUninstallCommand reverses install: tears down every enforced list,
// removes the service and the binary.
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove all enforcement, the service and the binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			r, err := newReconciler(cfg, false)
			if err != nil {
				return err
			}
			for _, id := range banlist.NewCatalog(cfg).IDs() {
				if err := r.Unban(id); err != nil {
					return fmt.Errorf("removing %q: %w", id, err)
				}
			}

			mgr, err := newServiceManager(cfg.StateDir)
			if err != nil {
				return err
			}
			if err := mgr.Uninstall(); err != nil {
				// keep going, the service may never have been installed
				fmt.Println("service removal skipped:", err)
			}
			if err := service.RemoveBinary(); err != nil {
				return err
			}
			fmt.Println("uninstalled")
			return nil
		},
	}
}

// NewServiceCommand holds the hidden entry point the init system invokes.
func NewServiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "service",
		Short:  "Service entry points",
		Hidden: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the init system (restores persisted rules)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mgr, err := newServiceManager(cfg.StateDir)
			if err != nil {
				return err
			}
			return mgr.Run()
		},
	})

	return cmd
}

func newServiceManager(stateDir string) (*service.Manager, error) {
	return service.NewManager(service.NewRestorer(stateDir).Restore)
}
