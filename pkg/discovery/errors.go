package discovery

import "errors"

// Error kinds per spec.md §7. Decode failures on TXT payloads, non-IPv4
// SRV targets, and unknown DNS names are not among these — they are
// dropped silently rather than surfaced, since they arise routinely from
// byzantine network participants.
var (
	// ErrConfigInvalid is returned for an unparseable tracker address or
	// a second call to Listen.
	ErrConfigInvalid = errors.New("discovery: invalid configuration")

	// ErrTransport wraps a transport-level error surfaced from an
	// underlying socket. It is reported via events, never fatal to the
	// instance.
	ErrTransport = errors.New("discovery: transport error")

	// ErrProbeFailed is returned when a tracker probe exhausts its
	// retry budget without a reply.
	ErrProbeFailed = errors.New("discovery: probe failed")

	// ErrQueryFailed is returned when no fan-out leg of a visit produced
	// a decodable response.
	ErrQueryFailed = errors.New("discovery: query failed")

	// ErrInconsistentObservation is returned by Whoami when two
	// agreeing trackers cannot be found but trackers disagree with
	// each other on the observed host:port.
	ErrInconsistentObservation = errors.New("discovery: inconsistent remote port/host")

	// ErrAlreadyListening is returned by Listen when called more than
	// once on the same instance.
	ErrAlreadyListening = errors.New("discovery: already listening")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("discovery: instance closed")
)
