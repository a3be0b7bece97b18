// Package realtime pushes notification events to browsers over WebSocket.
//
// A Hub consumes the shared notifications pub/sub channel and forwards each
// event to the connections of its user on this instance. While the cache is
// down, notifications.RedisPublisher falls back to Hub.Publish, so events
// still reach users connected to the instance that created them.
//
// Connections authenticate with a short-lived signed token passed as the
// token query parameter. Tokens are issued by TokenHandler to users with a
// session and expire after Config.TokenTTL (five minutes by default).
// Missing, malformed and expired tokens are refused with 401 before the
// upgrade.
//
// The client subpackage is the reconnecting consumer side.
package realtime
