// Package jwt signs and verifies short-lived HS256 tokens on top of
// github.com/golang-jwt/jwt/v5.
//
// Parse always requires an exp claim and rejects any algorithm other than
// HS256. Failures wrap one of the package sentinels, so callers can tell an
// expired token (ErrExpiredToken) from a forged or malformed one.
//
//	svc, _ := jwt.NewFromString(secret, jwt.WithIssuer("coord"))
//	token, _ := svc.Generate(svc.NewClaims(userID, 5*time.Minute))
//
//	claims := &jwt.Claims{}
//	err := svc.Parse(token, claims)
//
// Middleware verifies a token taken from the Authorization header or, with
// QueryTokenExtractor, from a query parameter, and stores the claims in the
// request context (GetClaims[*jwt.Claims]).
package jwt
