package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"netban/internal/app"
	"netban/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "netban",
	Short:         "Block network access to configurable domain lists",
	Long:          "netban resolves the domains of a named ban list, loads the addresses into a kernel address set and installs filter rules that drop traffic to them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "path to the config file")
	rootCmd.SetFlagErrorFunc(app.WrapFlagError)
	rootCmd.AddCommand(
		app.NewBanCommand(),
		app.NewUnbanCommand(),
		app.NewStatusCommand(),
		app.NewListsCommand(),
		app.NewUpdateCommand(),
		app.NewInstallCommand(),
		app.NewUninstallCommand(),
		app.NewDoctorCommand(),
		app.NewServiceCommand(),
		app.NewVersionCommand(),
	)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Error(err.Error())
	}
	os.Exit(app.ExitCode(err))
}
