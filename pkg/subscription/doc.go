// Package subscription tracks live queries against a Flux deployment and
// bridges the transport's push callbacks into per-consumer update streams.
//
// # Call Keys
//
// A live query is identified by its Call Key: the function name plus the
// canonical wire encoding of its arguments. Two subscriptions whose argument
// maps encode to identical wire text share one Call Key and therefore one
// transport registration; keys that differ are fully independent and never
// cross-deliver updates.
//
// # Stream semantics
//
// Streams are cold: the transport registration happens on the first
// Updates call, not when the stream is created. Once live, a stream is
// infinite; backend errors arrive as failed items and the stream continues.
// Updates are buffered without bound on the consumer side so the transport's
// delivery goroutine never blocks.
//
// # Cancellation
//
// Cancel synchronously unregisters the query at the transport (when the
// cancelled stream is the key's last consumer) before returning. It is
// idempotent and safe to race with an in-flight delivery: once Cancel
// returns, the consumer observes nothing further.
package subscription
