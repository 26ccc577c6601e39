package tiktok

import (
	"fmt"
	"log/slog"
)

// perfLog records timing breakdowns at debug level.
func perfLog(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), slog.String("component", "tiktok.perf"))
}
