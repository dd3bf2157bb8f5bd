package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Identifier tags every record sent to the journal.
const Identifier = "vidbuf"

// Config is the [logging] section of the configuration file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`

	// Output replaces stdout when set. The journal is skipped.
	Output io.Writer `toml:"-"`
}

var (
	mutex          sync.RWMutex
	globalConfig   Config
	globalLevelVar = &slog.LevelVar{}
	isInitialized  bool
	moduleLoggers  = make(map[string]*slog.Logger)
	moduleLevels   = make(map[string]*slog.LevelVar)
)

// Initialize installs the handler chain and applies levels to every module
// logger handed out so far. Loggers obtained before Initialize follow the
// new levels but keep their old destination; call GetLogger again for the
// configured handlers.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true
	globalLevelVar.Set(levelOr(config.Level, slog.LevelInfo))

	for module, levelVar := range moduleLevels {
		levelVar.Set(moduleLevel(module))
		moduleLoggers[module] = newModuleLogger(module, levelVar)
	}

	slog.SetDefault(slog.New(createHandler(config, globalLevelVar)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := moduleLoggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))
	logger = newModuleLogger(module, levelVar)
	moduleLoggers[module] = logger
	moduleLevels[module] = levelVar
	return logger
}

// SetLevel changes the level of one module at runtime.
func SetLevel(module, level string) error {
	parsed := parseLevel(level)
	if parsed == nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	moduleLevels[module].Set(*parsed)
	return nil
}

// Modules lists the modules that have requested a logger.
func Modules() []string {
	mutex.RLock()
	defer mutex.RUnlock()
	out := make([]string, 0, len(moduleLoggers))
	for module := range moduleLoggers {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

// moduleLevel resolves the configured level of module. Callers hold mutex.
func moduleLevel(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	level := levelOr(globalConfig.Level, slog.LevelInfo)
	if override, ok := globalConfig.Modules[module]; ok {
		level = levelOr(override, level)
	}
	return level
}

// newModuleLogger builds a module logger. Callers hold mutex.
func newModuleLogger(module string, level slog.Leveler) *slog.Logger {
	config := globalConfig
	if !isInitialized {
		config = Config{Format: "text"}
	}
	return slog.New(createHandler(config, level)).With("module", module)
}

// createHandler writes to stdout (or config.Output) and to the journal when
// one is running.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	var stream slog.Handler
	if config.Format == "json" {
		stream = slog.NewJSONHandler(out, opts)
	} else {
		stream = slog.NewTextHandler(out, opts)
	}

	if config.Output != nil {
		return stream
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stream)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(Identifier, level))
	}

	switch len(handlers) {
	case 0:
		return stream
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable reports whether stdout goes to a terminal, pipe, socket
// or file rather than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts a level name to slog.Level, nil when unknown.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
