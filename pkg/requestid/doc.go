// Package requestid tags every request with an X-Request-ID, stores it in
// the context and exposes it to the logger through LoggerExtractor.
// Malformed or oversized ids sent by clients are replaced.
package requestid
