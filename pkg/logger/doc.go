// Package logger builds the *slog.Logger instances used across phkit.
//
// The SDK never writes to stdout on its own: every component accepts a logger
// through an option and falls back to slog.Default(). Applications that want a
// dedicated SDK logger create one with New:
//
//	log := logger.New(
//	    logger.WithDebug(cfg.Debug),
//	    logger.WithAttr(logger.Component("phkit")),
//	)
//
// Attribute helpers in attr.go keep key names stable so that session and
// delivery records can be correlated in log pipelines:
//
//	log.Warn("request failed",
//	    logger.URL(req.URL),
//	    logger.StatusCode(resp.StatusCode),
//	    logger.RetryCount(req.RetriesPerformedSoFar),
//	)
//
// Error and DistinctID style helpers return an empty slog.Attr for empty input,
// which slog drops, so callers never need a nil check.
//
// Context values can be attached to every record with WithContextValue or a
// custom ContextExtractor; the extraction happens inside Handle so the latest
// value in the context is always used.
package logger
