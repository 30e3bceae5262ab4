package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/logging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

func Execute() error {
	return newRootCmd().Execute()
}

// cli carries what every subcommand shares once flags are parsed.
type cli struct {
	cfg        *viper.Viper
	configFile string
	envFile    string
	log        *logrus.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: newConfig()}

	rootCmd := &cobra.Command{
		Use:           "khaos",
		Short:         "KHAOS: a personality-driven agent that watches a DAO",
		Long:          "khaos runs an autonomous agent with a weighted personality. It keeps a heartbeat, polls the state of a DAO, and remembers what it said across sessions.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return c.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (toml, yaml or json)")
	flags.StringVar(&c.envFile, "env-file", defaultEnvFile, "Dotenv file loaded before reading the environment")
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error, quiet")
	flags.String("log-format", logging.FormatText, "Log format: text or json")
	_ = c.cfg.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = c.cfg.BindPFlag(keyLogFormat, flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(c),
		newStatusCmd(c),
		newProbeCmd(c),
	)

	return rootCmd
}

func (c *cli) load(cmd *cobra.Command) error {
	if err := godotenv.Load(c.envFile); err != nil {
		// The default file is optional; an explicit one is not.
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("%w: load env file %s: %w", domain.ErrConfigLoad, c.envFile, err)
		}
	}

	if c.configFile != "" {
		c.cfg.SetConfigFile(c.configFile)
		if err := c.cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read config %s: %w", domain.ErrConfigLoad, c.configFile, err)
		}
	}

	log, closer, err := logging.New(logging.Options{
		Level:      c.cfg.GetString(keyLogLevel),
		Format:     c.cfg.GetString(keyLogFormat),
		File:       c.cfg.GetString(keyLogFile),
		MaxSizeMB:  c.cfg.GetInt(keyLogMaxSizeMB),
		MaxBackups: c.cfg.GetInt(keyLogMaxBackups),
		Output:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("%w: configure logging: %w", domain.ErrConfigLoad, err)
	}
	c.log = log
	c.logCloser = closer

	return nil
}

func (c *cli) close() error {
	if c.logCloser == nil {
		return nil
	}
	err := c.logCloser.Close()
	c.logCloser = nil
	return err
}
