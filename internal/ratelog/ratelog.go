// Package ratelog wraps the standard log package with a per-key rate
// limiter so a persistently broken PID or a flapping upstream cannot flood
// stderr (spec.md §7: malformed sections/packets are logged at WARN and
// dropped, "without escalating to an event"). Grounded on a
// summarize-on-flush shape: suppress most of a burst, then report how many
// were swallowed on the next line that does get through.
package ratelog

import (
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// Key identifies one independent rate-limiting bucket, typically
// (pipe name, reason) so a broken PID's CRC errors don't also suppress an
// unrelated pipe's WARN lines.
type Key struct {
	Pipe   string
	Reason string
}

// Limiter rate-limits WARN-level log lines per Key. The zero value is not
// usable; use New.
type Limiter struct {
	every rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[Key]*bucket
}

type bucket struct {
	lim        *rate.Limiter
	suppressed int
}

// New returns a Limiter allowing up to burst log lines immediately per key,
// then refilling at one line every 1/every seconds.
func New(every rate.Limit, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{every: every, burst: burst, buckets: make(map[Key]*bucket)}
}

// Warnf logs a WARN-prefixed line for key, formatted as
// "<pipe>: <reason>: <msg>", unless the key's bucket is currently
// exhausted. When a suppressed burst ends, the next allowed line is
// prefixed with the number of lines dropped since the last one emitted.
func (l *Limiter) Warnf(key Key, format string, args ...any) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	allowed := b.lim.Allow()
	suppressed := b.suppressed
	if allowed {
		b.suppressed = 0
	} else {
		b.suppressed++
	}
	l.mu.Unlock()

	if !allowed {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if suppressed > 0 {
		log.Printf("WARN %s: %s: %s (suppressed %d prior)", key.Pipe, key.Reason, msg, suppressed)
		return
	}
	log.Printf("WARN %s: %s: %s", key.Pipe, key.Reason, msg)
}

// Suppressed reports how many lines are currently pending suppression for
// key (i.e. would be folded into the next allowed line's count), for tests.
func (l *Limiter) Suppressed(key Key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b.suppressed
	}
	return 0
}
