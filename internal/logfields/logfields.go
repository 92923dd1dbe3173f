// Package logfields holds canonical log field name constants and slog.Attr
// helpers, so field names do not drift across packages.
package logfields

import "log/slog"

const (
	KeyBookID     = "book_id"
	KeyTitle      = "title"
	KeyChapter    = "chapter"
	KeyAsset      = "asset"
	KeyStage      = "stage"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyAttempt    = "attempt"
	KeyWorker     = "worker"
	KeyStatus     = "status"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BookID(id string) slog.Attr      { return slog.String(KeyBookID, id) }
func Title(t string) slog.Attr        { return slog.String(KeyTitle, t) }
func Chapter(name string) slog.Attr   { return slog.String(KeyChapter, name) }
func Asset(name string) slog.Attr     { return slog.String(KeyAsset, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Worker(id int) slog.Attr         { return slog.Int(KeyWorker, id) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
