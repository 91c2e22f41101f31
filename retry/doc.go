// Package retry provides the bounded retry-with-backoff policy used at every
// network boundary of the router: embedding requests, vector store calls, and
// remote transports.
//
// A zero Policy performs exactly one attempt. Errors wrapped with [Permanent]
// are returned immediately without further attempts, and cancellation of the
// context stops the loop.
package retry
