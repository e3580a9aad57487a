// Package log wraps the standard library logger with per-service names,
// leveled helpers and two process-wide switches: debug (global or per
// service) and quiet, which drops INFO lines the way the daemon's
// --quiet flag requires.
//
//	l := log.ForService("ipc")
//	l.Infof("listening on %s", path)
//	l.Debugf("connection %s lagged by %d", id, n)
//
// Tests redirect output with SetOutput(&buf). All functions are safe for
// concurrent use.
package log
