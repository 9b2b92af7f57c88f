package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codelif/futexsync"
)

const (
	JSONFormat   = "json"
	TextFormat   = "text"
	LogfmtFormat = "logfmt"
)

type rootArgs struct {
	logLevel  string
	logFormat string
}

// NewRootCmd returns the futexsync command tree.
func NewRootCmd(name, shortDesc, longDesc string) *cobra.Command {
	args := &rootArgs{}

	cmd := &cobra.Command{
		Use:           name,
		Short:         shortDesc,
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cc *cobra.Command, _ []string) error {
			logger, err := NewLogger(args.logLevel, args.logFormat)
			if err != nil {
				return err
			}
			log.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&args.logLevel, "log-level", envOr("LOG_LEVEL", "info"),
		fmt.Sprintf("Log level: debug, info, warn, error (env %s)", futexsync.GetEnvKey("LOG_LEVEL")))
	cmd.PersistentFlags().StringVar(&args.logFormat, "log-format", envOr("LOG_FORMAT", TextFormat),
		fmt.Sprintf("Log format: text, logfmt, json (env %s)", futexsync.GetEnvKey("LOG_FORMAT")))

	cmd.AddCommand(NewStressCmd(), NewInspectCmd(), NewVersionCmd())

	return cmd
}

// NewLogger creates a stderr logger from level and format strings.
func NewLogger(level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})

	switch strings.ToLower(format) {
	case JSONFormat:
		logger.SetFormatter(log.JSONFormatter)
	case LogfmtFormat:
		logger.SetFormatter(log.LogfmtFormatter)
	case TextFormat, "":
		logger.SetFormatter(log.TextFormatter)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return logger, nil
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(futexsync.GetEnvKey(name)); ok && v != "" {
		return v
	}
	return fallback
}
