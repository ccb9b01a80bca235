package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. JSON output is opt-in via
// LOG_FORMAT=json; anything else gets the readable text handler. Every
// record carries a service attribute so the auth service is identifiable
// in shared log streams.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "authsvc"))
}
