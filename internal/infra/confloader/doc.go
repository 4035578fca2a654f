// Package confloader loads rafter-node configuration.
//
// It uses koanf with, from lowest to highest priority, the defaults already
// present in the target struct, a YAML file, RAFTER_ environment variables
// (nested keys separated by a double underscore) and maps built from
// command-line flags. A fsnotify based Watcher lets the node pick up a
// subset of settings, such as the log level, without a restart.
package confloader
