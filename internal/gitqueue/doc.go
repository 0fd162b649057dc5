// Package gitqueue provides the single serialization point for every
// operation that mutates an on-disk source checkout.
//
// The git tooling is unsafe under concurrent invocation, even across unrelated
// repositories, so a Queue runs exactly one operation at a time in submission
// order, globally. One Queue is constructed per process and handed to every
// consumer; nothing may clone, fetch, check out or merge outside of it.
//
//	q := gitqueue.New()
//	q.Start(ctx)
//	defer q.Shutdown()
//
//	err := q.Do(ctx, "checkout org/api@abc123", gitqueue.Checkout(dir, sha))
//
// A failing or panicking operation reports its error to its own submitter
// only; later operations run normally.
package gitqueue
