// Package logx is a small structured-logging facade over zerolog.
//
// The Service owns the configured sinks (console, file) and can swap them at
// runtime via Apply; Loggers handed out earlier keep following the current
// configuration. The forwarder's verbosity knob (0=none, 1=errors, 2=all)
// maps onto levels via LevelForVerbosity.
package logx
