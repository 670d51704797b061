// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/config"
	"github.com/networkdynamics/gotok/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config

	flagHeadless bool
	flagManual   bool
	flagLogin    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gotok",
	Short: "gotok pulls public TikTok data through a real browser session.",
	Long: `gotok drives a Chrome instance against the TikTok web app, captures
the signed API traffic the page itself generates, and replays it to
paginate profiles, videos, comments, hashtags, and search results.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gotok"})
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Flags set on the command line win over the file and environment.
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = flagHeadless
		}
		if cmd.Flags().Changed("manual-captcha") {
			cfg.Captcha.Manual = flagManual
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("starting gotok", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagHeadless, "headless", false, "run Chrome headless")
	rootCmd.PersistentFlags().BoolVar(&flagManual, "manual-captcha", false, "pause for a human operator on captchas instead of solving")
	rootCmd.PersistentFlags().StringVar(&flagLogin, "login", "", "log in before scraping, as user:password")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
