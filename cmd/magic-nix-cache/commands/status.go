package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mightyiam/magic-nix-cache/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	statusAPIHost string
	statusAPIPort int
	statusOutput  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the status of a running magic-nix-cache daemon.

Queries the daemon's health endpoints and reports whether it is running,
whether it is still accepting workflow requests, and which upload backends
are configured.

Examples:
  # Check status with default API port
  magic-nix-cache status

  # Check status on a custom port
  magic-nix-cache status --api-port 8080

  # Machine-readable output
  magic-nix-cache status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIHost, "api-host", "localhost", "API server host")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 3000, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// DaemonStatus represents the daemon status information.
type DaemonStatus struct {
	Running  bool     `json:"running" yaml:"running"`
	Ready    bool     `json:"ready" yaml:"ready"`
	Backends []string `json:"backends,omitempty" yaml:"backends,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// healthPayload mirrors the daemon's health endpoint response body.
type healthPayload struct {
	Status string `json:"status"`
	Data   struct {
		Backends []string `json:"backends"`
	} `json:"data"`
	Error string `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := DaemonStatus{
		Message: "Daemon is not running",
	}

	client := &http.Client{Timeout: 2 * time.Second}
	baseURL := fmt.Sprintf("http://%s:%d", statusAPIHost, statusAPIPort)

	if _, err := fetchHealth(client, baseURL+"/health"); err == nil {
		status.Running = true
		status.Message = "Daemon is running"

		ready, err := fetchHealth(client, baseURL+"/health/ready")
		if err == nil {
			status.Ready = ready.Status == "healthy"
			status.Backends = ready.Data.Backends
			if !status.Ready {
				status.Message = fmt.Sprintf("Daemon is running but not accepting workflow requests: %s", ready.Error)
			}
		} else {
			status.Message = "Daemon is running but readiness check failed"
		}
	}

	printer := output.NewPrinter(os.Stdout, format, true)
	if format == output.FormatTable {
		return printStatusTable(printer, status)
	}
	return printer.Print(status)
}

// fetchHealth queries one health endpoint and decodes its response.
// A 503 still carries a valid body, so only transport errors fail.
func fetchHealth(client *http.Client, url string) (*healthPayload, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload healthPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func printStatusTable(p *output.Printer, status DaemonStatus) error {
	p.Println("Magic Nix Cache Daemon Status")
	p.Println()

	pairs := [][2]string{
		{"Status", statusCell(status)},
	}
	if status.Running {
		backends := "none"
		if len(status.Backends) > 0 {
			backends = strings.Join(status.Backends, ", ")
		}
		pairs = append(pairs, [2]string{"Backends", backends})
	}
	if err := output.SimpleTable(p.Writer(), pairs); err != nil {
		return err
	}

	p.Println()
	switch {
	case status.Running && status.Ready:
		p.Success(status.Message)
	case status.Running:
		p.Warning(status.Message)
	default:
		p.Error(status.Message)
	}
	return nil
}

func statusCell(status DaemonStatus) string {
	switch {
	case status.Running && status.Ready:
		return "● Running"
	case status.Running:
		return "● Running (draining)"
	default:
		return "○ Stopped"
	}
}
