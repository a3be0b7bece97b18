// Package notifications creates notification records and fans them out to
// connected clients.
//
// A Pipeline ties together:
//
//   - Storage: rows plus the per-user unread counter (PostgresStorage,
//     MemoryStorage). Mutations keep both in one transaction.
//   - Limiter: per-user, per-type creation limits on the ratelimit primitive.
//   - Publisher: best-effort fan-out on the "notifications" pub/sub channel
//     (RedisPublisher), with a local publisher while the cache is down.
//   - ReadCache: read-through cache of list pages and unread counts
//     (RedisReadCache), dropped on every mutation of the user.
//   - Deliverer: optional extra channels such as email (EmailDeliverer).
//
// Storage is authoritative. A failed publish or cache call is logged and
// never rolls back a write; clients see the notification on the next list.
//
// # Usage
//
//	pipeline, err := notifications.NewPipeline(cfg, notifications.NewPostgresStorage(pool),
//		notifications.WithLimiter(limiter),
//		notifications.WithReadCache(notifications.NewRedisReadCache(cache, cfg.CachePrefix, cfg.ListCacheTTL, cfg.CountCacheTTL)),
//		notifications.WithPublisher(notifications.NewRedisPublisher(cache, cfg.Channel, hub)),
//	)
//
//	n, err := pipeline.Create(ctx, notifications.Params{
//		UserID:  authorID,
//		Type:    notifications.TypeComment,
//		Title:   "New comment",
//		Content: notifications.CommentContent{StoryID: storyID, CommentID: commentID},
//	})
//	var limitErr *ratelimit.LimitError
//	if errors.As(err, &limitErr) {
//		// too many comment notifications for this user in the window
//	}
//
// # Content
//
// Content is a tagged union keyed by Type. Each type has one struct
// (CommentContent, ReplyContent, ...) and Params.Validate rejects content
// of another type. JSON encoding uses the type field to pick the variant.
//
// # Delayed creation
//
// DelayedSender puts a creation on the durable queue when the cache is up
// and on in-process timers otherwise. Register DelayedSender.Handler with
// the queue worker.
package notifications
