// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import "log/slog"

// Err возвращает атрибут "error" с текстом ошибки. Для nil возвращает
// пустую строку, чтобы вызов в defer-ветках не паниковал.
//
//	log.Error("failed to end session", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ID возвращает атрибут с числовым идентификатором сущности.
func ID(key string, id int64) slog.Attr {
	return slog.Int64(key, id)
}
