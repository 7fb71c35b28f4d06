package queue

import (
	"math"
	"sort"
	"time"
)

const (
	TransportPayments = "payments"
	TransportAsync    = "async"
	TransportFailed   = "failed"
)

// RetryStrategy is an exponential backoff policy.
type RetryStrategy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration // zero means unbounded
}

// Next returns the delay before retry number retryCount+1 and whether that
// retry is allowed at all. retryCount is the number of retries already
// made.
func (s RetryStrategy) Next(retryCount int) (time.Duration, bool) {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= s.MaxRetries {
		return 0, false
	}
	mult := s.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(s.Delay) * math.Pow(mult, float64(retryCount))
	if s.MaxDelay > 0 && d > float64(s.MaxDelay) {
		return s.MaxDelay, true
	}
	return time.Duration(d), true
}

// Tiers returns the distinct delays, truncated to milliseconds, that Next
// yields for every allowed retry. Next never shrinks, so the result is
// ascending.
func (s RetryStrategy) Tiers() []time.Duration {
	var tiers []time.Duration
	for i := 0; i < s.MaxRetries; i++ {
		d, _ := s.Next(i)
		d = d.Truncate(time.Millisecond)
		if n := len(tiers); n == 0 || tiers[n-1] != d {
			tiers = append(tiers, d)
		}
	}
	return tiers
}

// tier maps delay onto the shortest tier that is at least as long, or the
// longest tier when delay exceeds them all.
func (s RetryStrategy) tier(delay time.Duration) time.Duration {
	delay = delay.Truncate(time.Millisecond)
	tiers := s.Tiers()
	if len(tiers) == 0 {
		return delay
	}
	for _, d := range tiers {
		if d >= delay {
			return d
		}
	}
	return tiers[len(tiers)-1]
}

// Transport is a named queue with its retry policy.
type Transport struct {
	Name  string
	Queue string
	Retry RetryStrategy
}

// retryDelay decides what happens to a message whose handler returned err.
func (t Transport) retryDelay(err error, retryCount int) (time.Duration, bool) {
	if IsUnrecoverable(err) {
		return 0, false
	}
	return t.Retry.Next(retryCount)
}

// Routing maps message types to transports. Unrouted types use the
// fallback transport.
type Routing struct {
	transports map[string]Transport
	routes     map[string]string
	fallback   string
	failed     Transport
}

// NewRouting builds a routing table. The first transport is the fallback.
func NewRouting(failed Transport, transports ...Transport) *Routing {
	r := &Routing{
		transports: make(map[string]Transport),
		routes:     make(map[string]string),
		failed:     failed,
	}
	for i, t := range transports {
		if i == 0 {
			r.fallback = t.Name
		}
		r.transports[t.Name] = t
	}
	return r
}

// Route sends msgType to the named transport.
func (r *Routing) Route(msgType, transport string) *Routing {
	r.routes[msgType] = transport
	return r
}

// TransportFor returns the transport msgType is routed to.
func (r *Routing) TransportFor(msgType string) Transport {
	if name, ok := r.routes[msgType]; ok {
		if t, ok := r.transports[name]; ok {
			return t
		}
	}
	return r.transports[r.fallback]
}

// Transport looks a transport up by name.
func (r *Routing) Transport(name string) (Transport, bool) {
	t, ok := r.transports[name]
	return t, ok
}

// Transports lists the routable transports sorted by name.
func (r *Routing) Transports() []Transport {
	out := make([]Transport, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failed is the dead-letter transport.
func (r *Routing) Failed() Transport { return r.failed }

// DefaultRouting sends payment commands to the payments transport and
// everything else to async.
func DefaultRouting(payments, async RetryStrategy, failedQueue string) *Routing {
	if failedQueue == "" {
		failedQueue = TransportFailed
	}
	return NewRouting(
		Transport{Name: TransportFailed, Queue: failedQueue},
		Transport{Name: TransportAsync, Queue: TransportAsync, Retry: async},
		Transport{Name: TransportPayments, Queue: TransportPayments, Retry: payments},
	).
		Route(TypeProcessPayment, TransportPayments).
		Route(TypeRefundPayment, TransportPayments)
}
