// Package logx configures botlog's diagnostic logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - One sink per named logger (console or size-rotating file)
//   - One pattern formatter per sink
//   - Named loggers memoized in an explicit Registry owned by the Factory
package logx
