package nginx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/proxyctl/internal/command"
)

type ManagerOptions struct {
	ConfigDir string
	// Command is the argv prefix that reaches the nginx binary, for example
	// ["docker", "exec", "reverse-proxy", "nginx"].
	Command []string
	Timeout time.Duration
}

// Manager owns the rendered config directory and talks to the running nginx.
// Writing a config never validates or reloads; callers chain those steps.
type Manager struct {
	logger    zerolog.Logger
	runner    command.Runner
	configDir string
	command   []string
	timeout   time.Duration
}

func NewManager(logger zerolog.Logger, runner command.Runner, opts ManagerOptions) *Manager {
	cmd := opts.Command
	if len(cmd) == 0 {
		cmd = []string{"nginx"}
	}
	return &Manager{
		logger:    logger.With().Str("component", "nginx-manager").Logger(),
		runner:    runner,
		configDir: opts.ConfigDir,
		command:   cmd,
		timeout:   opts.Timeout,
	}
}

// ConfigPath is where the document for name lives.
func (m *Manager) ConfigPath(name string) string {
	return filepath.Join(m.configDir, name+".conf")
}

// WriteConfig replaces the document for name atomically and returns its path.
func (m *Manager) WriteConfig(name, content string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	path := m.ConfigPath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config for %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("save config for %s: %w", name, err)
	}

	m.logger.Debug().Str("domain", name).Str("path", path).Msg("nginx config written")
	return path, nil
}

// ReadConfig returns the current document for name.
func (m *Manager) ReadConfig(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	b, err := os.ReadFile(m.ConfigPath(name))
	if err != nil {
		return "", fmt.Errorf("read config for %s: %w", name, err)
	}
	return string(b), nil
}

// RemoveConfig deletes the document for name. A missing file is not an error.
func (m *Manager) RemoveConfig(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(m.ConfigPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove config for %s: %w", name, err)
	}
	return nil
}

// CleanOrphanedConfigs removes managed *.conf files whose name is not in
// expected (keyed by file name, e.g. "example.com.conf"). A file is managed
// only when its first line starts with ManagedMarker, so hand-written files
// in the same directory survive whatever their name.
func (m *Manager) CleanOrphanedConfigs(expected map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".conf") || expected[name] {
			continue
		}
		path := filepath.Join(m.configDir, name)
		managed, err := isManaged(path)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("failed to inspect config")
			continue
		}
		if !managed {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("failed to remove orphaned config")
			continue
		}
		m.logger.Info().Str("file", name).Msg("removed orphaned config")
		removed = append(removed, name)
	}
	return removed, nil
}

func isManaged(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(ManagedMarker))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return string(head[:n]) == ManagedMarker, nil
}

// Test runs nginx -t against the live configuration.
func (m *Manager) Test(ctx context.Context) (*command.Result, error) {
	return m.run(ctx, "-t")
}

// Reload signals nginx to reload its configuration.
func (m *Manager) Reload(ctx context.Context) (*command.Result, error) {
	return m.run(ctx, "-s", "reload")
}

// Version returns nginx -V output (version and build flags).
func (m *Manager) Version(ctx context.Context) (*command.Result, error) {
	return m.run(ctx, "-V")
}

func (m *Manager) run(ctx context.Context, args ...string) (*command.Result, error) {
	argv := append(append([]string{}, m.command[1:]...), args...)
	return m.runner.Run(ctx, command.Command{Name: m.command[0], Args: argv, Timeout: m.timeout})
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid config name %q", name)
	}
	return nil
}
