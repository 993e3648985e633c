package opencode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/log"
)

// Server defaults.
const (
	DefaultBinary          = "opencode"
	DefaultHostname        = "127.0.0.1"
	DefaultStartupTimeout  = 30 * time.Second
	DefaultHealthInterval  = 500 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
)

// stderrTailLimit is how much server stderr is kept for diagnostics.
const stderrTailLimit = 8 * 1024

// ServerConfig configures a locally spawned OpenCode server.
type ServerConfig struct {
	// Binary is the opencode executable (default "opencode").
	Binary string
	// Model is passed as --model when set.
	Model string
	// WorkDir is the working directory of the server process.
	WorkDir string
	// ExtraArgs are appended to the serve command line.
	ExtraArgs []string
	// Hostname to bind (default 127.0.0.1).
	Hostname string
	// Port to bind. Zero picks a free port.
	Port int
	// StartupTimeout bounds the wait for a healthy server (default 30s).
	StartupTimeout time.Duration
	// HealthInterval is the delay between health probes (default 500ms).
	HealthInterval time.Duration
	// ShutdownTimeout bounds the wait for the process to exit after kill (default 5s).
	ShutdownTimeout time.Duration
	// Env entries are added to the inherited environment. Later entries win.
	Env []string
	// Logger is optional.
	Logger *log.Logger
}

// Server is a running `opencode serve` process owned by warden.
// Close must be called to reap it.
type Server struct {
	cmd     *exec.Cmd
	baseURL string
	port    int
	stderr  *iox.TailBuffer
	exited  chan struct{}
	waitErr error
	timeout time.Duration
	logger  *log.Logger

	closeOnce sync.Once
}

// StartServer spawns an OpenCode server and waits until it answers /health.
// On failure the process is killed and the error carries the stderr tail.
func StartServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	applyServerDefaults(&cfg)

	port := cfg.Port
	if port == 0 {
		p, err := freePort(cfg.Hostname)
		if err != nil {
			return nil, fmt.Errorf("pick port: %w", err)
		}
		port = p
	}

	args := []string{"serve", "--port", strconv.Itoa(port), "--hostname", cfg.Hostname}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)

	// Lifetime is owned by Close, not by ctx.
	cmd := exec.Command(cfg.Binary, args...)
	cmd.Dir = cfg.WorkDir
	if len(cfg.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), cfg.Env...))
	}
	stderr := iox.NewTailBuffer(stderrTailLimit)
	cmd.Stderr = stderr
	cmd.Stdout = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start opencode server: %w", err)
	}

	s := &Server{
		cmd:     cmd,
		baseURL: "http://" + net.JoinHostPort(cfg.Hostname, strconv.Itoa(port)),
		port:    port,
		stderr:  stderr,
		exited:  make(chan struct{}),
		timeout: cfg.ShutdownTimeout,
		logger:  cfg.Logger,
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	cfg.Logger.Info("opencode server starting", map[string]any{
		"binary": cfg.Binary,
		"port":   port,
		"pid":    cmd.Process.Pid,
	})

	if err := s.waitHealthy(ctx, cfg.StartupTimeout, cfg.HealthInterval); err != nil {
		_ = s.Close()
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return nil, fmt.Errorf("%w\nserver output:\n%s", err, tail)
		}
		return nil, err
	}

	cfg.Logger.Info("opencode server ready", map[string]any{"url": s.baseURL})
	return s, nil
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Hostname == "" {
		cfg.Hostname = DefaultHostname
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
}

// waitHealthy polls GET /health until it succeeds, the process exits,
// the timeout elapses, or ctx is canceled.
func (s *Server) waitHealthy(ctx context.Context, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: interval * 2}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.probe(ctx, client) {
			return nil
		}
		select {
		case <-s.exited:
			return fmt.Errorf("opencode server exited during startup: %v", s.waitErr)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("opencode server not healthy after %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) probe(ctx context.Context, client *http.Client) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	iox.DrainClose(resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// BaseURL returns the server root URL.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Stderr returns the captured tail of the server output.
func (s *Server) Stderr() string {
	return s.stderr.String()
}

// Close kills the server and waits for it to exit. Safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
			return
		default:
		}
		if killErr := s.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = fmt.Errorf("kill opencode server: %w", killErr)
			return
		}
		select {
		case <-s.exited:
			s.logger.Debug("opencode server stopped", nil)
		case <-time.After(s.timeout):
			err = fmt.Errorf("opencode server did not exit within %s", s.timeout)
		}
	})
	return err
}

// freePort asks the kernel for an unused TCP port on host.
func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(l)
	return l.Addr().(*net.TCPAddr).Port, nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
