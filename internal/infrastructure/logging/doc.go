// Package logging provides structured logging for the SlideBolt relay.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("hub registered", "hub_id", hubID)
//
// # Security
//
// Never log hub secrets, admin tokens, or Alexa access/refresh tokens.
package logging
