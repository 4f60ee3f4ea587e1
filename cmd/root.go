package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pieces/internal/config"
	"pieces/internal/logging"
)

// Version is overridden at build time with -ldflags "-X pieces/cmd.Version=...".
var Version = "0.1.0"

var (
	cfgFile      string
	outputFormat string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "pieces",
	Short:         "Pieces: trigger connectors for Airtable, Mailchimp and friends",
	Long:          color.CyanString("Pieces runs polling and webhook triggers of SaaS connectors and feeds what they detect to your automations."),
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.pieces.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
	flags.String("instances-dir", "./instances", "directory containing trigger instance YAML files")
	flags.String("secrets-file", "", "path to .env-style secrets file")
	flags.String("plugins-dir", "./plugins", "directory containing external piece executables")
	flags.String("store", "sqlite:pieces.db", "trigger store DSN (memory:, sqlite:<file>, postgres://..., redis://...)")
	flags.String("public-url", "", "externally reachable base URL for webhook deliveries")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")

	viper.BindPFlag("instances_dir", flags.Lookup("instances-dir"))
	viper.BindPFlag("secrets_file", flags.Lookup("secrets-file"))
	viper.BindPFlag("plugins_dir", flags.Lookup("plugins-dir"))
	viper.BindPFlag("store.dsn", flags.Lookup("store"))
	viper.BindPFlag("server.public_url", flags.Lookup("public-url"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".pieces")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, color.HiBlackString("Using config file: %s", viper.ConfigFileUsed()))
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, color.RedString("Reading config file: %v", err))
		os.Exit(1)
	}
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	}
	return err
}
