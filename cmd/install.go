package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AegisDefend/aegis-installer/internal/provision"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

var (
	consoleURL   string
	apiKey       string
	siteToken    string
	channel      string
	policy       string
	stagingDir   string
	archOverride string
	skipStart    bool
	autoReboot   bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the newest matching agent package",
	Long:  `Query the package catalog, select the newest package for the configured release channel and CPU architecture, download it, install it, set the site token, and start the agent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger("install")

		applyFlagOverrides(cmd)
		if err := Cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline, err := provision.New(Cfg)
		if err != nil {
			return err
		}

		if err := pipeline.Run(ctx); err != nil {
			log.WithError(err).Error("Provisioning failed")
			return err
		}
		return nil
	},
}

// applyFlagOverrides copies explicitly set flags over the loaded config, so
// flags win over the config file and environment.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("console-url") {
		Cfg.Console.URL = consoleURL
	}
	if cmd.Flags().Changed("api-key") {
		Cfg.Console.APIKey = apiKey
	}
	if cmd.Flags().Changed("site-token") {
		Cfg.Console.SiteToken = siteToken
	}
	if cmd.Flags().Changed("channel") {
		Cfg.Console.Channel = channel
	}
	if cmd.Flags().Changed("policy") {
		Cfg.Selection.Policy = policy
	}
	if cmd.Flags().Changed("staging-dir") {
		Cfg.Download.Dir = stagingDir
	}
	if cmd.Flags().Changed("arch") {
		Cfg.Install.ArchOverride = archOverride
	}
	if cmd.Flags().Changed("skip-start") {
		Cfg.Install.SkipStart = skipStart
	}
	if cmd.Flags().Changed("auto-reboot") {
		Cfg.Install.AutoReboot = autoReboot
	}
}

func init() {
	installCmd.Flags().StringVar(&consoleURL, "console-url", "", "management console URL")
	installCmd.Flags().StringVar(&apiKey, "api-key", "", "console API key")
	installCmd.Flags().StringVar(&siteToken, "site-token", "", "site token to associate the agent with")
	installCmd.Flags().StringVar(&channel, "channel", "", "release channel (GA or EA)")
	installCmd.Flags().StringVar(&policy, "policy", "", "selection policy (version or server-order)")
	installCmd.Flags().StringVar(&stagingDir, "staging-dir", "", "directory for the downloaded artifact")
	installCmd.Flags().StringVar(&archOverride, "arch", "", "override detected CPU architecture")
	installCmd.Flags().BoolVar(&skipStart, "skip-start", false, "install and set token but do not start the agent (golden-image builds)")
	installCmd.Flags().BoolVar(&autoReboot, "auto-reboot", false, "allow legacy Windows installers to force a reboot")

	RootCmd.AddCommand(installCmd)
}
