// Package ca implements the BISS-CA descrambling plumbing of spec.md
// §4.7.4: the demux wires CAT/PMT conditional-access descriptors to an
// EMM/ECM decoder pair, but actual key recovery is a pluggable backend
// (spec.md §9: "EMM decoding is gated at compile time in the source; the
// specification mandates the interface but leaves the implementation
// optional").
package ca

// Entitlement identifies one (ESID, ONID) entitlement unit carried in a
// CAT descriptor 0x80 payload.
type Entitlement struct {
	ESID uint16
	ONID uint16
}

// ControlWord is a recovered 8-byte DVB-CSA/CISSA control word.
type ControlWord [8]byte

// EMMDecoder consumes EMM sections for a CA system and resolves
// entitlements into control words shared with ECM decoders.
type EMMDecoder interface {
	// HandleEMM processes one EMM section's payload.
	HandleEMM(section []byte) error
	// ControlWordFor returns the current control word for an entitlement,
	// or ok=false if no key is available.
	ControlWordFor(e Entitlement) (ControlWord, bool)
}

// ECMDecoder consumes ECM sections for one program and resolves the
// currently active control word using a shared EMMDecoder.
type ECMDecoder interface {
	HandleECM(section []byte) (ControlWord, bool, error)
}

// NullEMMDecoder is the no-key-recovery stub: it accepts EMM/ECM traffic
// (so the pipeline plumbing exercises real data) but never reports an
// entitlement: key recovery is an optional compile-time capability, gated
// behind this interface rather than built in (see DESIGN.md).
type NullEMMDecoder struct{}

func (NullEMMDecoder) HandleEMM(section []byte) error { return nil }

func (NullEMMDecoder) ControlWordFor(Entitlement) (ControlWord, bool) {
	return ControlWord{}, false
}

// NullECMDecoder pairs with NullEMMDecoder.
type NullECMDecoder struct{}

func (NullECMDecoder) HandleECM(section []byte) (ControlWord, bool, error) {
	return ControlWord{}, false, nil
}
