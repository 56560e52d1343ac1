// Package task runs asynchronous exchanges and hands back cancellable
// handles with at-most-once completion.
//
// A [Group] bounds how many tasks run at once. [Group.Start] launches
// work and returns a [Handle]:
//
//	g := task.NewGroup(4)
//	h := task.Start(ctx, g, work, func(v T, err error) { ... })
//	if h.Cancel() {
//		// the completion callback will never run
//	}
//
// The completion callback and a successful [Handle.Cancel] are mutually
// exclusive: whichever happens first wins, and the other becomes a no-op.
package task
