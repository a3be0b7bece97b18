// Package queue runs delayed and periodic jobs.
//
// The durable backend is RedisStorage on the coordination cache. An
// Enqueuer stores a task due after a delay, a Worker claims due tasks and
// dispatches them by name to a Handler, and a Scheduler creates periodic
// tasks from a Schedule such as TwiceDaily(3, 15).
//
// A failed task is retried with exponential backoff (Config.RetryBaseDelay
// doubling up to RetryMaxDelay) until it has failed MaxRetries+1 times; it
// is then pushed to a dead-letter list, where DeadLetters lists it and
// Requeue puts it back with a fresh retry budget. A task whose worker dies
// mid-run becomes claimable again once its lock times out, so handlers must
// tolerate running more than once.
//
//	storage := queue.NewRedisStorage(cacheManager, cfg)
//	enq, _ := queue.NewEnqueuer(storage)
//	_, err := enq.Enqueue(ctx, ReminderPayload{UserID: id}, queue.WithDelay(time.Hour))
//
//	worker, _ := queue.NewWorker(storage, cfg, queue.WithWorkerLogger(log))
//	worker.RegisterHandlers(queue.NewTaskHandler(sendReminder))
//	g.Go(worker.Run(ctx))
//
// Without the cache, Timers is an in-process replacement for delayed jobs:
// single instance only, lost on restart.
package queue
