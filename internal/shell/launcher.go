package shell

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"qian/internal/logging"
	"qian/internal/metrics"
)

var ErrInvalidCommand = errors.New("invalid shell command")

const (
	ActionOpen     = "open"
	ActionReveal   = "reveal"
	ActionTerminal = "terminal"
)

type Options struct {
	GOOS    string
	Runner  Runner
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Launcher hands paths to OS collaborators. Started commands are reaped in
// the background and tracked until they exit.
type Launcher struct {
	goos    string
	runner  Runner
	logger  *logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	running map[int]string
	reaping sync.WaitGroup
}

// Launched describes a command that has not exited yet.
type Launched struct {
	PID    int    `json:"pid"`
	Action string `json:"action"`
}

func NewLauncher(options Options) *Launcher {
	goos := options.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	runner := options.Runner
	if runner == nil {
		runner = execRunner{}
	}
	return &Launcher{
		goos:    goos,
		runner:  runner,
		logger:  options.Logger,
		metrics: options.Metrics,
		running: make(map[int]string),
	}
}

// Open opens path with the default application.
func (l *Launcher) Open(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidCommand)
	}
	return l.launch(ActionOpen, openCommand(l.goos, path))
}

// Reveal shows path in the platform file manager.
func (l *Launcher) Reveal(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidCommand)
	}
	return l.launch(ActionReveal, revealCommand(l.goos, path))
}

// OpenTerminal starts the terminal application app in dir.
func (l *Launcher) OpenTerminal(app, dir string) error {
	app = strings.TrimSpace(app)
	if app == "" {
		return fmt.Errorf("%w: terminal application is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: directory is required", ErrInvalidCommand)
	}
	return l.launch(ActionTerminal, terminalCommand(l.goos, app, dir))
}

// Running lists launched commands that have not been reaped.
func (l *Launcher) Running() []Launched {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Launched, 0, len(l.running))
	for pid, action := range l.running {
		out = append(out, Launched{PID: pid, Action: action})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Wait blocks until every launched command has been reaped.
func (l *Launcher) Wait() {
	l.reaping.Wait()
}

func (l *Launcher) launch(action string, command Command) error {
	process, err := l.runner.Start(command)
	l.metrics.IncShellCommand(action, err)
	if err != nil {
		l.logWarn("shell command failed", action, command, map[string]string{
			"error": err.Error(),
		})
		return fmt.Errorf("%s %s: %w", action, command.Name, err)
	}

	pid := process.PID()
	l.track(pid, action)
	l.logInfo("shell command started", action, command, map[string]string{
		"pid": strconv.Itoa(pid),
	})

	l.reaping.Add(1)
	go func() {
		defer l.reaping.Done()
		waitErr := process.Wait()
		l.untrack(pid)
		if waitErr != nil {
			l.logWarn("shell command exited with error", action, command, map[string]string{
				"pid":   strconv.Itoa(pid),
				"error": waitErr.Error(),
			})
		}
	}()
	return nil
}

func (l *Launcher) track(pid int, action string) {
	if pid <= 0 {
		return
	}
	l.mu.Lock()
	l.running[pid] = action
	l.mu.Unlock()
}

func (l *Launcher) untrack(pid int) {
	if pid <= 0 {
		return
	}
	l.mu.Lock()
	delete(l.running, pid)
	l.mu.Unlock()
}

func (l *Launcher) logInfo(message, action string, command Command, fields map[string]string) {
	if l.logger == nil {
		return
	}
	l.logger.Info(message, commandFields(action, command, fields))
}

func (l *Launcher) logWarn(message, action string, command Command, fields map[string]string) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(message, commandFields(action, command, fields))
}

func commandFields(action string, command Command, fields map[string]string) map[string]string {
	merged := map[string]string{
		"qian.category": "shell",
		"qian.source":   "backend",
		"action":        action,
		"command":       strings.TrimSpace(command.Name + " " + strings.Join(command.Args, " ")),
	}
	if command.Dir != "" {
		merged["dir"] = command.Dir
	}
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
