// Package logger builds *slog.Logger instances with a small set of functional
// options and a handler decorator that copies request-scoped values (request
// id, user id) from the context into every record.
//
//	log := logger.New(
//		logger.FromConfig(cfg),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "notification created",
//		logger.UserID(n.UserID),
//		logger.NotificationType(string(n.Type)),
//	)
//
// Attribute helpers in attr.go keep key names consistent across packages.
// Error and Errors return an empty attribute for nil errors, so callers can
// pass them unconditionally.
package logger
