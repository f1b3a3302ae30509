// Package logging provides structured logging utilities for the liquidmail backend.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email/subject anonymization)
//   - Consistent attribute naming across the codebase
//   - Adapter for libraries expecting printf-style loggers
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "gmail.send")
//	logger.Info("message dispatched",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token refreshed",
//	    logging.SubjectHash(subject))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - Subjects are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
