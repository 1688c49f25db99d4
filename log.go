package blockfs

import "log/slog"

// logging helpers mirror the nil-gated *slog.Logger pattern used
// throughout soypat/fat's fat.go: every call site guards on fs.log
// being non-nil so a zero-value Filesystem stays silent by default.

func (fs *Filesystem) trace(msg string, args ...any) {
	if fs.log != nil {
		fs.log.Debug(msg, append([]any{"level", "trace"}, args...)...)
	}
}

func (fs *Filesystem) debug(msg string, args ...any) {
	if fs.log != nil {
		fs.log.Debug(msg, args...)
	}
}

func (fs *Filesystem) info(msg string, args ...any) {
	if fs.log != nil {
		fs.log.Info(msg, args...)
	}
}

func (fs *Filesystem) warn(msg string, args ...any) {
	if fs.log != nil {
		fs.log.Warn(msg, args...)
	}
}

func (fs *Filesystem) logerror(msg string, err error, args ...any) {
	if fs.log != nil {
		fs.log.Error(msg, append([]any{"err", err}, args...)...)
	}
}

// SetLogger attaches a structured logger to fs. Passing nil silences
// logging, which is also the zero-value behavior.
func (fs *Filesystem) SetLogger(l *slog.Logger) { fs.log = l }
