/*
Package log provides structured logging for addons using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific child loggers, configurable log levels, and helpers for
the fields that matter when debugging a marketplace integration: addon key,
workspace ID, webhook event, and request ID.

Secrets handling: installation tokens arrive in lifecycle payloads and webhook
signatures arrive in headers. Neither may be logged verbatim; use Redact to
keep a short identifying prefix.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("webhook")
	logger.Info().Str("workspace_id", ws).Msg("event received")
*/
package log
