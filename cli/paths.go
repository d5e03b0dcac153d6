package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
)

func newPathsCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the latest metrics document in a models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if dir == "" {
				dir = a.cfg.ModelsDir
			}

			// Unlike the server, inspecting a missing directory is an error
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				color.New(color.FgRed).Fprintln(cmd.ErrOrStderr(), "models directory not found:", dir)
				return &ExitCodeError{Code: 1}
			}

			path, err := artifacts.NewLocator(dir, a.logger).FindLatest()
			if errors.Is(err, artifacts.ErrNoMetrics) {
				fmt.Fprintln(out, "no metrics yet in:", dir)
				return nil
			}
			if err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintln(out, "latest metrics:", path)
			if err := printJSONFile(out, path); err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Models directory (default MODELS_DIR)")
	return cmd
}
