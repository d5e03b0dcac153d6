package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

func newStatusCommand() *cobra.Command {
	var server string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the training status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(server, "/") + "/api/train/status"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: timeout}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach server: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var status struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return fmt.Errorf("invalid status response: %w", err)
			}

			out := cmd.OutOrStdout()
			statusColor(status.Status).Fprintf(out, "Status:  %s\n", status.Status)
			if status.Message != "" {
				fmt.Fprintf(out, "Message: %s\n", status.Message)
			}
			return printJSON(out, body)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8001", "Base URL of the training server")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func statusColor(status string) *color.Color {
	switch status {
	case string(models.TrainingStatusDone):
		return color.New(color.FgGreen)
	case string(models.TrainingStatusError):
		return color.New(color.FgRed)
	case string(models.TrainingStatusTraining):
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}
