// Package types defines the value types shared by every stage of the request
// pipeline: the dispatcher creates them, the log buffer owns them, and the
// broadcaster, archive and alert sinks read them.
package types
