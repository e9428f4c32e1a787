package discovery

import (
	"context"
	"fmt"
	"sync"
)

// WhoamiObservation is one tracker's report of how it saw the caller
// (spec.md §4.8).
type WhoamiObservation struct {
	SourceHost string // the tracker's own address, to distinguish agreeing responses
	Host       string
	Port       uint16
}

// Whoami determines how the configured trackers see this instance's
// public host:port. It requires at least two trackers: each is probed
// (retries=2) concurrently, and the result is the first pair of
// observations from distinct source hosts that agree on both host and
// port. If no such pair agrees but two observations from distinct
// source hosts disagree, it returns ErrInconsistentObservation.
//
// With a single tracker the operation returns ErrProbeFailed without
// sending anything — there is no independent cross-check (spec.md
// §4.8). Each configured tracker contributes at most one observation,
// and two observations with the same tracker host are never paired, so
// duplicate responses from one tracker cannot count as agreement.
func Whoami(ctx context.Context, sessions []*TrackerSession) (WhoamiObservation, error) {
	if len(sessions) < 2 {
		return WhoamiObservation{}, fmt.Errorf("%w: at least two trackers required", ErrProbeFailed)
	}

	observations := make([]WhoamiObservation, len(sessions))
	errs := make([]error, len(sessions))

	var wg sync.WaitGroup
	for i, sess := range sessions {
		wg.Add(1)
		go func(idx int, s *TrackerSession) {
			defer wg.Done()
			probe := *s
			probe.Retries = 2
			res, err := probe.Probe(ctx)
			if err != nil {
				errs[idx] = err
				return
			}
			observations[idx] = WhoamiObservation{
				SourceHost: s.Tracker.Host,
				Host:       res.host,
				Port:       res.port,
			}
		}(i, sess)
	}
	wg.Wait()

	var ok []WhoamiObservation
	for i, err := range errs {
		if err == nil {
			ok = append(ok, observations[i])
		}
	}

	var inconsistent error
	for i := 0; i < len(ok); i++ {
		for j := i + 1; j < len(ok); j++ {
			if ok[i].SourceHost == ok[j].SourceHost {
				continue
			}
			if ok[i].Host == ok[j].Host && ok[i].Port == ok[j].Port {
				return ok[i], nil
			}
			if inconsistent == nil {
				inconsistent = fmt.Errorf("%w: %s:%d vs %s:%d", ErrInconsistentObservation,
					ok[i].Host, ok[i].Port, ok[j].Host, ok[j].Port)
			}
		}
	}
	if inconsistent != nil {
		return WhoamiObservation{}, inconsistent
	}

	return WhoamiObservation{}, fmt.Errorf("%w: fewer than two trackers agreed", ErrProbeFailed)
}
