// Package logging owns the process-wide zerolog setup and the request ID
// carried from the dashboard API through to admin API calls.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // json, console or auto
	Level     string
	Component string
}

type requestIDKey struct{}

const timeFormat = time.RFC3339

// aliases accepted on top of zerolog's own level names.
var levelAliases = map[string]zerolog.Level{
	"":        zerolog.InfoLevel,
	"warning": zerolog.WarnLevel,
	"off":     zerolog.Disabled,
}

var (
	mu     sync.RWMutex
	root   zerolog.Logger
	output io.Writer = os.Stderr

	// swapped by tests
	stderr     io.Writer = os.Stderr
	isTerminal           = term.IsTerminal
)

func init() {
	root = zerolog.New(output).With().Timestamp().Logger()
	log.Logger = root
}

// Init applies cfg to the global level and the shared root logger, which is
// also installed as zerolog's log.Logger.
func Init(cfg Config) zerolog.Logger {
	w := writerFor(cfg.Format)

	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	ctx := zerolog.New(w).With().Timestamp()
	if component := strings.TrimSpace(cfg.Component); component != "" {
		ctx = ctx.Str("component", component)
	}
	root = ctx.Logger()
	output = w
	log.Logger = root
	return root
}

// WithComponent derives a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", component).Logger()
}

// ForRequest returns logger with the request ID from ctx attached, or logger
// unchanged when ctx carries none.
func ForRequest(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With().Str("request_id", id).Logger()
}

// IsLevelEnabled reports whether level passes the global filter.
func IsLevelEnabled(level zerolog.Level) bool {
	return level >= zerolog.GlobalLevel()
}

// SetGlobalLevel changes the global level at runtime. Unknown names fall back
// to info.
func SetGlobalLevel(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// GetGlobalLevel returns the name of the current global level.
func GetGlobalLevel() string {
	return zerolog.GlobalLevel().String()
}

// WithRequestID stores requestID on ctx, generating one when it is blank.
func WithRequestID(ctx context.Context, requestID string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestID = strings.TrimSpace(requestID); requestID == "" {
		requestID = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID), requestID
}

// RequestIDFromContext returns the ID stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func parseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if lvl, ok := levelAliases[name]; ok {
		return lvl
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		fmt.Fprintf(stderr, "logging: unknown level %q, using info\n", name)
		return zerolog.InfoLevel
	}
	return lvl
}

// writerFor picks the output for format. auto uses the console writer only
// when stderr is a terminal.
func writerFor(format string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return zerolog.ConsoleWriter{Out: stderr, TimeFormat: timeFormat}
	case "json":
		return stderr
	case "", "auto":
		if f, ok := stderr.(*os.File); ok && isTerminal(int(f.Fd())) {
			return zerolog.ConsoleWriter{Out: stderr, TimeFormat: timeFormat}
		}
		return stderr
	default:
		fmt.Fprintf(stderr, "logging: unknown format %q, using json\n", format)
		return stderr
	}
}
