// Package fingerprint binds sessions to the client context they were created
// in. A fingerprint is HMAC-SHA256, under a server secret, of the client IP,
// the User-Agent and the Accept-Language header.
//
//	h, err := fingerprint.New([]byte(cfg.FingerprintSecret))
//	fp := h.Generate(r)           // at login, stored on the session
//	ok := h.Match(r, session.Fingerprint) // on every request
//
// A mismatch means the token is presented from a different client context,
// which the session manager treats as probable token theft.
package fingerprint
