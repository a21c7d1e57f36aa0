// log — прокидывание *slog.Logger через context.Context.
package log

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// Into возвращает контекст с вложенным логгером.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// From извлекает логгер из контекста; если его там нет — slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
