package confloader

import "log/slog"

// WatchKey reloads l after every change of its configuration file and calls
// apply with the new value of key whenever it differs from the last value
// seen. A file that fails to parse is logged and leaves the current value in
// place.
func WatchKey(w *Watcher, l *Loader, key string, apply func(string) error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	last := l.GetString(key)

	w.OnChange(func(string) {
		if err := l.Reload(); err != nil {
			logger.Warn("configuration reload failed", "error", err)
			return
		}
		value := l.GetString(key)
		if value == last {
			return
		}
		if err := apply(value); err != nil {
			logger.Warn("configuration value rejected", "key", key, "value", value, "error", err)
			return
		}
		logger.Info("configuration value reloaded", "key", key, "old", last, "new", value)
		last = value
	})
}
