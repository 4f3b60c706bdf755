package tsdemux

import "sync"

// TSClockMax is 2^33 MPEG clock ticks (90kHz units) converted to 27MHz,
// spec.md §4.7.3: 2^33 * (27MHz/90kHz) = 2^33 * 300.
const TSClockMax = (uint64(1) << 33) * 300

// MaxPCRInterval is the largest plausible gap between consecutive PCRs
// before it is treated as a discontinuity rather than wrap (27MHz, i.e.
// one second), per spec.md §4.7.3.
const MaxPCRInterval = 27_000_000

// DefaultMaxDelay is the default per-ES DTS acceptance window (1 second in
// 27MHz ticks), per spec.md §4.7.3.
const DefaultMaxDelay = 27_000_000

// ClockRecon reconstructs a monotonic program clock from a PCR stream,
// handling both the expected 2^33-tick wraparound and genuine
// discontinuities (spec.md §4.7.3, §8 properties 7-8).
//
// offset is the PCR-only unbounded monotonic accumulator; it advances
// exclusively in Observe and is what the next ordinary (non-discontinuous)
// PCR delta is added to. timestampHighest is the highest program time
// reported so far by either clock (PCR or reconciled ES DTS) and is kept
// only for callers that want that watermark; it never feeds back into
// offset, so a DTS sample reconciled ahead of the current PCR cannot leak
// into the next PCR advance. lastMod is offset reduced modulo TSClockMax,
// used only to compute the delta against the next raw (always-wrapped) PCR
// sample.
type ClockRecon struct {
	mu               sync.Mutex
	known            bool
	offset           uint64
	timestampHighest uint64
	lastMod          uint64
}

// PCREvent is the result of feeding one PCR sample through ClockRecon.
type PCREvent struct {
	ProgramTime   uint64
	Discontinuity bool
}

// PCR27MHz converts a 33-bit, 90kHz PCR value to 27MHz ticks.
func PCR27MHz(pcr90kHz uint64) uint64 {
	return (pcr90kHz % (uint64(1) << 33)) * 300
}

// Observe feeds a PCR sample (already converted to 27MHz, mod TSClockMax)
// through the reconstruction state machine.
func (c *ClockRecon) Observe(pcrOrig uint64) PCREvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.known {
		c.known = true
		c.offset = pcrOrig
		c.timestampHighest = pcrOrig
		c.lastMod = pcrOrig
		return PCREvent{ProgramTime: c.offset}
	}

	delta := (TSClockMax + pcrOrig - c.lastMod) % TSClockMax
	if delta <= MaxPCRInterval {
		c.offset += delta
		c.lastMod = pcrOrig
		if c.offset > c.timestampHighest {
			c.timestampHighest = c.offset
		}
		return PCREvent{ProgramTime: c.offset}
	}

	// Discontinuity: program time does not advance; the next delta is
	// measured from this new PCR value going forward (spec.md §4.7.3).
	c.lastMod = pcrOrig
	return PCREvent{ProgramTime: c.offset, Discontinuity: true}
}

// LastProgramTime returns the most recently reported PCR-derived program
// time (the offset accumulator, not timestamp_highest).
func (c *ClockRecon) LastProgramTime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// DTSEvent is the result of reconstructing a per-ES decode timestamp.
type DTSEvent struct {
	DTSProg uint64
	Ok      bool
}

// ReconcileDTS converts a raw DTS sample into program time, following
// spec.md §4.7.3's acceptance window: samples farther than maxDelay from
// the last PCR are dropped (timestamp left unset) rather than accepted.
// This only ever updates timestamp_highest, never the PCR-only offset, so
// an ES sample reconciled ahead of the program clock cannot inflate the
// base the next ordinary PCR advance is computed from.
func (c *ClockRecon) ReconcileDTS(dtsOrig uint64, maxDelay uint64) DTSEvent {
	if maxDelay == 0 {
		maxDelay = DefaultMaxDelay
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known {
		return DTSEvent{}
	}
	delta := (TSClockMax + dtsOrig - c.lastMod) % TSClockMax
	if delta > maxDelay {
		return DTSEvent{}
	}
	dtsProg := c.offset + delta
	if dtsProg > c.timestampHighest {
		c.timestampHighest = dtsProg
	}
	return DTSEvent{DTSProg: dtsProg, Ok: true}
}
