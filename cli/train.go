package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/executor"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/spec"
)

func newTrainCommand(a *app) *cobra.Command {
	var configFile string
	var outputDir string
	req := models.DefaultTrainRequest()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier in the foreground and print its metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// Parse the YAML job spec if provided, then let explicit flags win
			final := models.DefaultTrainRequest()
			if configFile != "" {
				fileReq, err := spec.LoadTrainRequestFile(configFile)
				if err != nil {
					return err
				}
				final = fileReq
			}
			if cmd.Flags().Changed("epochs") {
				final.Epochs = req.Epochs
			}
			if cmd.Flags().Changed("batch-size") {
				final.BatchSize = req.BatchSize
			}
			if cmd.Flags().Changed("model-name") {
				final.ModelName = req.ModelName
			}
			if err := final.Validate(); err != nil {
				return err
			}

			dir := outputDir
			if dir == "" {
				dir = a.cfg.ModelsDir
			}

			trainer, err := executor.NewTrainingExecutor(
				executor.NewCommandRunner(a.logger),
				a.cfg.TrainerCommand,
				a.cfg.TrainerWorkDir,
				a.logger,
			)
			if err != nil {
				return err
			}

			argv := append([]string{a.cfg.TrainerCommand[0]}, trainer.BuildArgs(final, dir)...)
			fmt.Fprintln(out, "$", strings.Join(argv, " "))

			_, err = trainer.Execute(cmd.Context(), final, dir, out)
			var exitErr *executor.ExitError
			if errors.As(err, &exitErr) {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "training failed with exit code %d\n", exitErr.ExitCode)
				return &ExitCodeError{Code: exitErr.ExitCode}
			}
			if err != nil {
				return err
			}

			metricsPath := filepath.Join(dir, artifacts.MetricsFileName(final.ModelName))
			if _, err := os.Stat(metricsPath); err != nil {
				fmt.Fprintln(out, "metrics not found at:", metricsPath)
				return nil
			}

			fmt.Fprintln(out, strings.Repeat("=", 60))
			color.New(color.FgGreen).Fprintln(out, "training summary")
			if err := printJSONFile(out, metricsPath); err != nil {
				return fmt.Errorf("read %s: %w", metricsPath, err)
			}
			fmt.Fprintln(out, strings.Repeat("=", 60))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "f", "", "Path to a YAML job spec. Flags override its values.")
	cmd.Flags().IntVar(&req.Epochs, "epochs", req.Epochs, "Number of training epochs")
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", req.BatchSize, "Training batch size")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the model files and metrics (default MODELS_DIR)")
	cmd.Flags().StringVar(&req.ModelName, "model-name", req.ModelName, "Base name of the produced files")

	cmd.MarkFlagFilename("config", "yaml", "yml")
	return cmd
}
