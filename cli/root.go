// Package cli implements the trainctl command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/config"
)

// ExitCodeError makes the process exit with Code without printing anything more
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the trainctl command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "trainctl",
		Short:         "Train the Fashion-MNIST classifier and inspect its artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
			return nil
		},
	}

	cmd.AddCommand(newTrainCommand(a))
	cmd.AddCommand(newPathsCommand(a))
	cmd.AddCommand(newStatusCommand())

	return cmd
}

// printJSONFile prints a JSON file indented, keeping fields this program does not know about
func printJSONFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return printJSON(w, data)
}

func printJSON(w io.Writer, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
