package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background Sandbox server",
		Long:  "Stop a Sandbox server that was started with 'sandbox serve'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

func runStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Storage.DataDir

	pid, err := readPID(dir)
	if err != nil {
		return fmt.Errorf("no running server found (missing PID file at %s)", pidFilePath(dir))
	}

	if !isProcessRunning(pid) {
		removePID(dir)
		return fmt.Errorf("server (PID %d) is not running (stale PID file removed)", pid)
	}

	fmt.Printf("Stopping Sandbox server (PID %d)...\n", pid)

	if err := stopProcess(pid); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Wait up to the shutdown timeout plus a little slack
	deadline := time.Now().Add(cfg.ShutdownTimeout() + 2*time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !isProcessRunning(pid) {
			removePID(dir)
			fmt.Println("Server stopped.")
			return nil
		}
	}

	return fmt.Errorf("server (PID %d) did not stop in time; it may still be draining connections", pid)
}
