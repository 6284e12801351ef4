// Package logging provides per-category leveled loggers that write to the
// console and forward records to the telemetry log shipper.
package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Category names a log channel.
type Category string

const (
	CategoryApp      Category = "app"
	CategoryAuth     Category = "auth"
	CategoryAPI      Category = "api"
	CategoryDatabase Category = "database"
	CategoryUI       Category = "ui"
)

// Shipper receives records for remote shipping.
type Shipper interface {
	Log(rec domain.LogRecord)
}

// Logger writes to slog and ships info-level and above records.
type Logger struct {
	category Category
	base     *slog.Logger
	shipper  Shipper
	now      func() time.Time
}

// New returns a logger for category. shipper may be nil.
func New(category Category, shipper Shipper) *Logger {
	return NewWithHandler(category, shipper, slog.Default())
}

// NewWithHandler is New with an explicit console logger.
func NewWithHandler(category Category, shipper Shipper, base *slog.Logger) *Logger {
	return &Logger{
		category: category,
		base:     base.With("category", string(category)),
		shipper:  shipper,
		now:      time.Now,
	}
}

func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }

// Category returns the logger's channel.
func (l *Logger) Category() Category { return l.category }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	l.base.Log(context.Background(), level, msg, args...)
	if l.shipper == nil || level < slog.LevelInfo {
		return
	}
	l.shipper.Log(domain.LogRecord{
		Timestamp:  l.now(),
		Level:      strings.ToLower(level.String()),
		Message:    msg,
		Category:   string(l.category),
		Properties: properties(args),
	})
}

// Set holds one logger per category.
type Set struct {
	App      *Logger
	Auth     *Logger
	API      *Logger
	Database *Logger
	UI       *Logger
}

// NewSet builds loggers for every category sharing one shipper.
func NewSet(shipper Shipper) Set {
	return Set{
		App:      New(CategoryApp, shipper),
		Auth:     New(CategoryAuth, shipper),
		API:      New(CategoryAPI, shipper),
		Database: New(CategoryDatabase, shipper),
		UI:       New(CategoryUI, shipper),
	}
}

// properties converts slog-style key/value args into a map.
func properties(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	props := make(map[string]any, len(args)/2)
	for len(args) > 0 {
		switch a := args[0].(type) {
		case slog.Attr:
			props[a.Key] = attrValue(a.Value)
			args = args[1:]
		case string:
			if len(args) == 1 {
				props["!BADKEY"] = a
				args = nil
				continue
			}
			props[a] = plain(args[1])
			args = args[2:]
		default:
			props["!BADKEY"] = a
			args = args[1:]
		}
	}
	return props
}

func plain(v any) any {
	switch x := v.(type) {
	case error:
		return x.Error()
	case time.Duration:
		return x.String()
	case slog.Value:
		return attrValue(x)
	}
	return v
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		group := make(map[string]any)
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	}
	return plain(v.Any())
}
