// Package observability builds the process-wide zap logger and carries
// request-scoped log fields through a context.
package observability
