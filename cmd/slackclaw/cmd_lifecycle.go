package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// runningDaemonPID reads slackclaw.pid and confirms the process is alive
// (signal 0 probe).
func runningDaemonPID() (int, error) {
	cfg := loadConfig()
	pidPath := filepath.Join(cfg.DataDir, "slackclaw.pid")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("slackclaw is not running (no PID file at %s)", pidPath)
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID file %s: %w", pidPath, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("slackclaw is not running (stale PID %d)", pid)
	}
	return pid, nil
}

func signalDaemon(sig syscall.Signal, did string) error {
	pid, err := runningDaemonPID()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	fmt.Printf("slackclaw (pid %d) %s\n", pid, did)
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down the running slackclaw daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGTERM, "asked to shut down")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running slackclaw daemon in place",
	Long:  "Sends SIGHUP, which makes the serve loop re-exec itself with the current config.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGHUP, "asked to restart")
	},
}
