package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sudoq/internal/conf"
	"sudoq/internal/flog"
)

var confFile string

var rootCmd = &cobra.Command{
	Use:           "sudoq",
	Short:         "sudoq is a traffic-obfuscating TCP tunnel",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tunnel with the given configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.LoadFromFile(confFile)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		if err := flog.Setup(cfg.Log.Level, cfg.Log.File); err != nil {
			return err
		}

		switch cfg.Role {
		case "server":
			startServer(cfg)
		default:
			startClient(cfg)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&confFile, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(runCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
