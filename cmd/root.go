package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/daeunpk/wink/internal/config"
	"github.com/daeunpk/wink/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wink",
		Short: "Mood keywords and music recommendations from conversational text and images",
		Long: `Wink turns each conversational turn (Korean text, an image, or both) into an
English mood sentence, a handful of mood keywords and a ranked list of
catalog tracks. Every turn is appended to a persistent session so later
turns can build on earlier ones.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $WINK_CONFIG, wink.yaml, wink.yml or config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log format (console, json)")

	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newSessionCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

func (o *rootOptions) load() error {
	// Load .env file if present (ignore errors)
	_ = godotenv.Load()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	o.cfg = cfg
	o.logger = logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return nil
}
