package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoggingFlags(t *testing.T) {
	cmd := &cobra.Command{}
	RegisterLoggingFlags(cmd.PersistentFlags())

	for _, name := range []string{FormatFlagName, LevelFlagName, OutputFlagName} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, FormatText, cmd.PersistentFlags().Lookup(FormatFlagName).DefValue)
	assert.Equal(t, LevelWarn, cmd.PersistentFlags().Lookup(LevelFlagName).DefValue)
	assert.Equal(t, OutputStderr, cmd.PersistentFlags().Lookup(OutputFlagName).DefValue)
}

func TestInvalidFlagValue(t *testing.T) {
	cmd := &cobra.Command{}
	RegisterLoggingFlags(cmd.Flags())

	assert.Error(t, cmd.Flags().Set(LevelFlagName, "verbose"))
	assert.Error(t, cmd.Flags().Set(FormatFlagName, "xml"))
	assert.NoError(t, cmd.Flags().Set(OutputFlagName, OutputStdout))
}

func TestGetBaseLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
		output string
	}{
		{"json debug stdout", FormatJSON, LevelDebug, OutputStdout},
		{"text info stderr", FormatText, LevelInfo, OutputStderr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			RegisterLoggingFlags(cmd.Flags())
			require.NoError(t, cmd.Flags().Set(FormatFlagName, tt.format))
			require.NoError(t, cmd.Flags().Set(LevelFlagName, tt.level))
			require.NoError(t, cmd.Flags().Set(OutputFlagName, tt.output))

			logger, err := GetBaseLogger(cmd)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestGetBaseLoggerWritesToOutput(t *testing.T) {
	cmd := &cobra.Command{}
	RegisterLoggingFlags(cmd.Flags())
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	require.NoError(t, cmd.Flags().Set(FormatFlagName, FormatJSON))

	logger, err := GetBaseLogger(cmd)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "name", "plover-foo")

	assert.Empty(t, stdout.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "plover-foo", entry["name"])
}

func TestLevelFromCommand(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cmd := &cobra.Command{}
			RegisterLoggingFlags(cmd.Flags())
			require.NoError(t, cmd.Flags().Set(LevelFlagName, tt.level))

			level, err := levelFromCommand(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
			assert.True(t, slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: level})).Enabled(context.Background(), tt.want))
		})
	}
}

func TestMissingFlags(t *testing.T) {
	_, err := GetBaseLogger(&cobra.Command{})
	assert.Error(t, err)
}
