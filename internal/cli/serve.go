package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/pkg/httpapi"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool API over HTTP",
	Long: `Serve the tool API over HTTP in the foreground.
Callers authenticate with the bearer tokens listed under "users" in the config.
The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	a, err := newApp(cfgFile, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := credentials(a.cfg.Users)
	if err != nil {
		return err
	}
	auth, err := httpapi.NewTokenAuthenticator(creds)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		a.logger.Warn().Msg("No users configured, every tool call will be rejected")
	}

	opts := httpapi.Options{
		Host:               a.cfg.HTTP.Host,
		Port:               a.cfg.HTTP.Port,
		ReadTimeout:        time.Duration(a.cfg.HTTP.ReadTimeout) * time.Second,
		ShutdownTimeout:    time.Duration(a.cfg.HTTP.ShutdownTimeout) * time.Second,
		RateLimitPerMinute: a.cfg.HTTP.RateLimitPerMinute,
	}

	var m httpapi.Metrics
	if a.metrics != nil {
		m = a.metrics
	}
	server, err := httpapi.NewServer(opts, a.dispatcher, auth, m, a.log.Component("http"))
	if err != nil {
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}

func credentials(users []config.UserConfig) ([]httpapi.Credential, error) {
	creds := make([]httpapi.Credential, 0, len(users))
	for _, u := range users {
		role, err := permission.ParseRole(u.Role)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		creds = append(creds, httpapi.Credential{
			Token: u.Token,
			User:  permission.AuthenticatedUser{ID: u.ID, Role: role},
		})
	}
	return creds, nil
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "toolgate.pid")
	}
	return filepath.Join(home, ".toolgate", "toolgate.pid")
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
