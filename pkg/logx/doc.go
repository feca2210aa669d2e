// Package logx configures mirai-webhook's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - An error log file that only receives error-level records, rate limited
//     so a flapping gateway connection cannot fill the disk
package logx
