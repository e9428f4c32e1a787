package discovery

import (
	"context"

	"github.com/shurlinet/dnsdiscover/internal/dnswire"
)

// QueryHandler is invoked by a transport when an inbound query arrives
// (server mode). The handler returns the message to send back, or nil
// to send no reply.
type QueryHandler func(msg *dnswire.Message, srcHost string, srcPort uint16) *dnswire.Message

// AnswerHandler is invoked by a transport for every inbound answer or
// additional record it observes, whether arriving as a direct response
// or riding along an inbound query (spec.md §4.5).
type AnswerHandler func(rec dnswire.Record, srcHost string, srcPort uint16)

// UnicastTransport is the consumed interface for DNS-over-UDP unicast
// (spec.md §6): per-request transaction ids, retries, and cancellation,
// plus an inbound query hook for server mode. Out of scope for the
// core's own package per spec.md §1; concrete implementation lives in
// internal/transport.
type UnicastTransport interface {
	// Query sends msg to host:port and returns the decoded reply.
	// retries additional attempts are made on timeout. The call blocks
	// until a reply arrives, ctx is canceled, or retries are exhausted.
	Query(ctx context.Context, msg *dnswire.Message, host string, port uint16, retries int) (*dnswire.Message, error)

	// Bind starts listening on port for inbound queries, invoking
	// onQuery for each and sending back whatever it returns.
	Bind(port uint16, onQuery QueryHandler) error

	// Close tears down every bound listener. Queries already in flight
	// are not canceled by Close; each ends on its own ctx, reply or
	// retry budget.
	Close() error
}

// MulticastTransport is the consumed interface for mDNS (spec.md §6).
type MulticastTransport interface {
	// Query sends msg as an mDNS query; matching responses are
	// delivered to onAnswer as they arrive until ctx is done.
	Query(ctx context.Context, msg *dnswire.Message, onAnswer AnswerHandler) error

	// Serve registers a responder for inbound mDNS questions (server
	// mode), mirroring the unicast transport's Bind.
	Serve(onQuery QueryHandler) error

	// Close tears down the multicast socket.
	Close() error
}
