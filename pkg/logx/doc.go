// Package logx is a thin zerolog wrapper used by bootstrap-time components
// (config loading/watching) that run before the slog-based logging service
// is configured. The zero value is a safe no-op logger.
package logx
