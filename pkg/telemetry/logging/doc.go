// Package logging provides structured logging with credential redaction.
//
// The logger wraps log/slog. Its handler adds the export fields carried by
// the context (batch_id, job, record_id, kind, and the active trace and span
// IDs) and, when redaction is enabled, strips credentials from attribute
// values before they reach the output:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	// Components log through the default logger.
//	log := slog.Default().With("component", "export.sink")
//	log.InfoContext(ctx, "connected", "url", "amqp://guest:guest@mq:5672/")
//	// url=amqp://guest:***@mq:5672/
//
// Attributes whose key names a secret (password, token, api_key and the
// like) are replaced entirely.
package logging
