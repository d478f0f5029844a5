package sdmmcspi

import (
	"context"
	"log/slog"
)

// levelTrace is below debug and prints every decoded frame's raw bits.
const levelTrace slog.Level = slog.LevelDebug - 1

func (d *Decoder) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Decoder) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Decoder) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Decoder) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
