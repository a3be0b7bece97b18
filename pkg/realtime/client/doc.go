// Package client is the consumer side of the realtime endpoint: a
// reconnecting WebSocket client with a small state machine
//
//	disconnected -> connecting -> connected -> (reconnecting <-> error) -> disconnected
//
// A Visibility source lets a UI host defer connecting and pinging while its
// window is hidden.
package client
