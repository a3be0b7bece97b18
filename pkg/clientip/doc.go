// Package clientip resolves the originating client address of an HTTP
// request behind a CDN and reverse proxies.
//
// Headers are trusted in this order, first valid value wins:
//
//  1. CF-Connecting-IP - set by the CDN edge
//  2. X-Forwarded-For  - first valid entry of the list
//  3. X-Real-IP        - set by the platform proxy
//  4. RemoteAddr       - TCP peer address
//
// The returned address is normalized (IPv6 in canonical form, IPv4-mapped
// addresses collapsed) so it can be used directly in rate-limit keys and
// session fingerprints. Spoofed or malformed header values are skipped.
//
//	r := chi.NewRouter()
//	r.Use(clientip.Middleware)
//
//	ip := clientip.GetIPFromContext(r.Context())
package clientip
