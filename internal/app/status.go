package app

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"netban/internal/banlist"
	"netban/internal/config"
	"netban/internal/enrich"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [list-id]",
		Short: "Show enforcement state for one list or all configured lists",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, err := newReconciler(cfg, false)
			if err != nil {
				return err
			}

			printHostLine()
			if mgr, err := newServiceManager(cfg.StateDir); err == nil {
				fmt.Printf("boot-restore service: %s\n", mgr.Status())
			}
			fmt.Println()

			ids := banlist.NewCatalog(cfg).IDs()
			if len(args) == 1 {
				if err := knownList(cfg, args[0]); err != nil {
					return err
				}
				ids = args[:1]
			}

			geo := enrich.New(filepath.Dir(config.DefaultPath), cfg.StateDir)
			defer geo.Close()

			for _, id := range ids {
				st, err := r.Status(id)
				if err != nil {
					return err
				}
				if !st.Active {
					fmt.Printf("%-20s inactive\n", id)
					continue
				}
				fmt.Printf("%-20s active  %d blocked addresses\n", id, len(st.Members))
				for _, m := range st.Members {
					if c := geo.Country(m); c != "" {
						fmt.Printf("  %-40s %s\n", m, c)
					} else {
						fmt.Printf("  %s\n", m)
					}
				}
			}
			return nil
		},
	}
}

func printHostLine() {
	info, err := host.Info()
	if err != nil {
		return
	}
	fmt.Printf("host: %s (%s %s, up %s)\n",
		info.Hostname, info.Platform, info.PlatformVersion, uptime(info.Uptime))
}

func uptime(secs uint64) string {
	d := secs / 86400
	h := secs % 86400 / 3600
	if d > 0 {
		return fmt.Sprintf("%dd%dh", d, h)
	}
	return fmt.Sprintf("%dh%dm", h, secs%3600/60)
}
