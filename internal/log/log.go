// Package log builds the command line's slog logger from its flags.
package log

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	FormatFlagName = "log-format"

	FormatText = "text"
	FormatJSON = "json"
)

const (
	LevelFlagName = "log-level"

	LevelWarn  = "warn"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelError = "error"
)

const (
	OutputFlagName = "log-output"

	OutputStderr = "stderr"
	OutputStdout = "stdout"
)

// RegisterLoggingFlags adds the log format, level and output flags.
// Defaults are text, warn and stderr.
func RegisterLoggingFlags(flags *pflag.FlagSet) {
	enumVar(flags, FormatFlagName, []string{FormatText, FormatJSON}, "log format")
	enumVar(flags, LevelFlagName, []string{LevelWarn, LevelDebug, LevelInfo, LevelError}, "log level")
	enumVar(flags, OutputFlagName, []string{OutputStderr, OutputStdout}, "log destination")
}

// GetBaseLogger builds a logger from the command's logging flags.
func GetBaseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := levelFromCommand(cmd)
	if err != nil {
		return nil, err
	}

	format, err := enumGet(cmd.Flags(), FormatFlagName)
	if err != nil {
		return nil, fmt.Errorf("reading log format: %w", err)
	}
	output, err := enumGet(cmd.Flags(), OutputFlagName)
	if err != nil {
		return nil, fmt.Errorf("reading log output: %w", err)
	}

	var w io.Writer
	switch output {
	case OutputStdout:
		w = cmd.OutOrStdout()
	default:
		w = cmd.ErrOrStderr()
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format: %s", format)
}

func levelFromCommand(cmd *cobra.Command) (slog.Level, error) {
	name, err := enumGet(cmd.Flags(), LevelFlagName)
	if err != nil {
		return slog.LevelWarn, fmt.Errorf("reading log level: %w", err)
	}
	switch name {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("invalid log level: %s", name)
}
