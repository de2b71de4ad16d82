// Package logging собирает slog.Logger по настройкам конфигурации.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options описывает вывод логгера.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json, auto
	File   string // путь к файлу с ротацией, по умолчанию stdout
}

// ParseLevel разбирает уровень логирования. Неизвестное значение возвращает ошибку.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New создаёт логгер. Возвращённый io.Closer закрывает файл лога, если он открыт.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
		tty              = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // мегабайты
			MaxBackups: 3,
			MaxAge:     7, // дни
		}
		out, closer, tty = rotating, rotating, false
	}

	handler, err := newHandler(out, opts.Format, tty, level)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(handler), closer, nil
}

func newHandler(w io.Writer, format string, tty bool, level slog.Level) (slog.Handler, error) {
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, hopts), nil
	case "json":
		return slog.NewJSONHandler(w, hopts), nil
	case "", "auto":
		if tty {
			return slog.NewTextHandler(w, hopts), nil
		}
		return slog.NewJSONHandler(w, hopts), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Discard возвращает логгер, который ничего не пишет. Удобен в тестах.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
