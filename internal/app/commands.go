package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"netban/internal/banlist"
)

func NewBanCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "ban [list-id]",
		Short: "Resolve a ban list and block traffic to its addresses",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			useStrict := cfg.Strict || strict
			r, err := newReconciler(cfg, useStrict)
			if err != nil {
				return err
			}

			list, err := banlist.NewCatalog(cfg).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return r.Ban(cmd.Context(), list)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail if any domain does not resolve")
	return cmd
}

func NewUnbanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unban [list-id]",
		Short: "Remove blocking for a ban list",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := knownList(cfg, args[0]); err != nil {
				return err
			}
			r, err := newReconciler(cfg, false)
			if err != nil {
				return err
			}
			return r.Unban(args[0])
		},
	}
}

func NewListsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show the configured ban lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			catalog := banlist.NewCatalog(cfg)
			for _, id := range catalog.IDs() {
				list, err := catalog.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if list.Source != "" {
					fmt.Fprintf(out, "%s (%s)\n", id, list.Source)
				} else {
					fmt.Fprintf(out, "%s\n", id)
				}
				for _, d := range list.Domains {
					fmt.Fprintf(out, "  - %s\n", d)
				}
			}
			return nil
		},
	}
}

// NewUpdateCommand re-resolves every enforced list. A list whose domains
// moved to new addresses gets its set rebuilt; inactive lists are untouched.
func NewUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh the addresses of all enforced ban lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, err := newReconciler(cfg, cfg.Strict)
			if err != nil {
				return err
			}

			catalog := banlist.NewCatalog(cfg)
			for _, id := range catalog.IDs() {
				st, err := r.Status(id)
				if err != nil {
					return err
				}
				if !st.Active {
					continue
				}

				list, err := catalog.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("refreshing %q: %w", id, err)
				}
				// teardown then re-ban so stale addresses drop out
				if err := r.Unban(id); err != nil {
					return fmt.Errorf("refreshing %q: %w", id, err)
				}
				if err := r.Ban(cmd.Context(), list); err != nil {
					return fmt.Errorf("refreshing %q: %w", id, err)
				}
				fmt.Printf("refreshed %s\n", id)
			}
			return nil
		},
	}
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the netban version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("netban", Version)
		},
	}
}
