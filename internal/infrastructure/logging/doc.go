// Package logging provides structured logging for the gallery core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 3000)
//	logger.Error("failed to open database", "error", err)
//
// # Security
//
// Never log passwords, password hashes, session tokens or the session secret.
// Failed logins are logged with the submitted username only, never the cause.
package logging
