// Package logx configures eventsched's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON lines
//   - Levels and sinks can be swapped at runtime via Service.Apply
package logx
