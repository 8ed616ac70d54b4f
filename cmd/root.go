// Package cmd wires the crabitat CLI: the serve daemon plus the client
// commands that talk to it over HTTP and websockets.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crabitat/crabitat/internal/client"
	"github.com/crabitat/crabitat/internal/config"
	"github.com/crabitat/crabitat/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	serverURL string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "crabitat",
	Short: "Control plane for a colony of worker crabs",
	Long: `Crabitat coordinates a fleet of LLM worker agents (crabs) running
multi-step dev workflows against git repositories.

The serve command hosts the control plane; watch, status, mission, and
workflows talk to a running control plane over its HTTP and websocket API.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .crabitat/crabitat.yaml, then ~/.config/crabitat/crabitat.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"control plane base URL (default: http://localhost:<listen.port>)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging to a file")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("listen.port", defaults.Listen.Port)
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("workflows.dir", defaults.Workflows.Dir)
	viper.SetDefault("poller.interval", defaults.Poller.Interval)
	viper.SetDefault("forge.token_env", defaults.Forge.TokenEnv)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.format", defaults.Log.Format)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .crabitat/crabitat.yaml (current directory)
		// 2. ~/.config/crabitat/crabitat.yaml (user config)
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			viper.SetConfigFile(config.DefaultConfigPath)
		} else {
			viper.AddConfigPath(config.UserConfigDir())
			viper.SetConfigName("crabitat")
			viper.SetConfigType("yaml")
		}
	}

	// CRABITAT_LISTEN_PORT=9000 overrides listen.port, and so on.
	viper.SetEnvPrefix("CRABITAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .crabitat/crabitat.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if writeErr := config.WriteDefaultConfig(config.DefaultConfigPath); writeErr == nil {
				viper.SetConfigFile(config.DefaultConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setupLogging enables file logging when --debug or CRABITAT_DEBUG is
// set. The returned cleanup closes the log file (no-op when disabled).
func setupLogging(prefix string) (func(), error) {
	debug := os.Getenv("CRABITAT_DEBUG") != "" || debugFlag
	if !debug {
		return func() {}, nil
	}

	logPath := os.Getenv("CRABITAT_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}

	cleanup, err := log.InitWithTeaLog(logPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	log.SetMinLevel(cfg.Log.MinLevel())
	log.SetFormat(log.Format(cfg.Log.Format))
	return cleanup, nil
}

// baseURL resolves the control plane address for client commands.
func baseURL() string {
	if serverURL != "" {
		return serverURL
	}
	return "http://" + cfg.Listen.Addr()
}

// apiClient builds the HTTP client the non-serve commands use.
func apiClient() *client.Client {
	return client.New(client.Config{BaseURL: baseURL()})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
