package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// AUTH OPERATIONS (AUTH*)
	AUTH_REGISTER LogCode = "AUTH_REGISTER"
	AUTH_LOGIN    LogCode = "AUTH_LOGIN"
	AUTH_LOGOUT   LogCode = "AUTH_LOGOUT"
	AUTH_VERIFY   LogCode = "AUTH_VERIFY"
	AUTH_RESET    LogCode = "AUTH_RESET"

	// REGISTRY OPERATIONS
	TEAM_UPDATE    LogCode = "TEAM_UPDATE"
	TEAM_MEMBERS   LogCode = "TEAM_MEMBERS"
	PROJECT_UPDATE LogCode = "PROJECT_UPDATE"

	// LIFECYCLE OPERATIONS
	TASK_UPDATE     LogCode = "TASK_UPDATE"
	TASK_ASSIGN     LogCode = "TASK_ASSIGN"
	DOCUMENT_UPDATE LogCode = "DOCUMENT_UPDATE"

	// EXTERNAL COLLABORATORS
	STORAGE LogCode = "STORAGE"
	MAIL    LogCode = "MAIL"
)

func GetHandlerOptions(level slog.Level, addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}
}

// NewRotatingFile returns a writer for path that is rotated once it grows past
// maxSizeMb. The parent directory is created if needed.
func NewRotatingFile(path string, maxSizeMb int) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMb,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}, nil
}

// NewLogger writes json records to stream and human readable records to
// console. Either may be nil.
func NewLogger(stream io.Writer, console io.Writer, service string, level slog.Level) *slog.Logger {
	handlers := make([]slog.Handler, 0, 2)
	if stream != nil {
		handlers = append(handlers, slog.NewJSONHandler(stream, GetHandlerOptions(level, true)))
	}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, GetHandlerOptions(level, false)))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	return slog.New(handler).With("service", service)
}

// Discard is used by components that were not given a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
