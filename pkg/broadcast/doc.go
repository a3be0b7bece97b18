// Package broadcast provides typed in-process fan-out.
//
//	b := broadcast.NewMemoryBroadcaster[string](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//	for msg := range sub.Receive() {
//		fmt.Println(msg.Data)
//	}
//
// Broadcast never blocks. A subscriber that cannot keep up is dropped and
// its channel closed.
package broadcast
