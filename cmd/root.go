package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AegisDefend/aegis-installer/internal/config"
)

var (
	cfgFile string
	Cfg     *config.Config
	Version string
)

var RootCmd = &cobra.Command{
	Use:   "aegis-installer",
	Short: "Aegis Installer - downloads and installs the Aegis endpoint agent",
	Long:  `Aegis Installer queries the management console for the newest agent package matching a release channel and CPU architecture, downloads it, installs it, associates the site token, and starts the agent service.`,
}

func Execute(version string) error {
	Version = version
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/aegis/config.yaml)")
}

func initConfig() {
	var err error

	Cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Printf("Fatal: Configuration could not be loaded: %v\n", err)
		os.Exit(1)
	}
}
