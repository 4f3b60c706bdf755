package tables

// CADescriptor is a decoded conditional-access descriptor (tag 0x09).
type CADescriptor struct {
	SystemID      uint16
	CAPID         uint16
	ScramblingMode uint8 // only meaningful when PrivateData carries it (system 0x2610)
}

// ESEntry is one elementary stream entry from a PMT.
type ESEntry struct {
	StreamType uint8
	PID        uint16
	CADescs    []CADescriptor
}

// PMT is a decoded Program Map Table section.
type PMT struct {
	ProgramNumber uint16
	VersionNumber uint8
	CurrentNext   bool
	PCRPID        uint16
	ProgramCADescs []CADescriptor
	ES            []ESEntry
}

// ParsePMT decodes a full PMT section.
func ParsePMT(section []byte) (*PMT, error) {
	body, err := stripPointer(section)
	if err != nil {
		return nil, err
	}
	if len(body) < 12 {
		return nil, ErrTruncated
	}
	if body[0] != TableIDPMT {
		return nil, ErrWrongTable
	}
	secLen := int(body[1]&0x0F)<<8 | int(body[2])
	if len(body) < 3+secLen {
		return nil, ErrTruncated
	}
	full := body[:3+secLen]
	if !VerifyCRC(full) {
		return nil, ErrBadCRC
	}
	pmt := &PMT{
		ProgramNumber: uint16(full[3])<<8 | uint16(full[4]),
		VersionNumber: (full[5] >> 1) & 0x1F,
		CurrentNext:   full[5]&0x01 != 0,
		PCRPID:        (uint16(full[8])&0x1F)<<8 | uint16(full[9]),
	}
	progInfoLen := int(full[10]&0x0F)<<8 | int(full[11])
	off := 12
	if off+progInfoLen > len(full) {
		return nil, ErrTruncated
	}
	pmt.ProgramCADescs = parseCADescriptors(full[off : off+progInfoLen])
	off += progInfoLen

	end := len(full) - 4 // exclude CRC
	for off+5 <= end {
		streamType := full[off]
		pid := (uint16(full[off+1])&0x1F)<<8 | uint16(full[off+2])
		esInfoLen := int(full[off+3]&0x0F)<<8 | int(full[off+4])
		off += 5
		if off+esInfoLen > end {
			return nil, ErrTruncated
		}
		es := ESEntry{StreamType: streamType, PID: pid, CADescs: parseCADescriptors(full[off : off+esInfoLen])}
		pmt.ES = append(pmt.ES, es)
		off += esInfoLen
	}
	return pmt, nil
}

// parseCADescriptors walks a descriptor loop extracting CA descriptors
// (tag 0x09), per spec.md §4.7 step 3 scrambling detection.
func parseCADescriptors(loop []byte) []CADescriptor {
	var out []CADescriptor
	off := 0
	for off+2 <= len(loop) {
		tag := loop[off]
		length := int(loop[off+1])
		off += 2
		if off+length > len(loop) {
			break
		}
		data := loop[off : off+length]
		off += length
		if tag != 0x09 || len(data) < 4 {
			continue
		}
		d := CADescriptor{
			SystemID: uint16(data[0])<<8 | uint16(data[1]),
			CAPID:    (uint16(data[2]) & 0x1F) << 8 | uint16(data[3]),
		}
		if d.SystemID == 0x2610 && len(data) >= 5 {
			d.ScramblingMode = data[4]
		}
		out = append(out, d)
	}
	return out
}

// IsDVBCISSA reports whether d names the BISS-CA/DVB-CISSA scrambling
// scheme (system 0x2610, scrambling mode 0x10) per spec.md §4.7 step 3.
func (d CADescriptor) IsDVBCISSA() bool {
	return d.SystemID == 0x2610 && d.ScramblingMode == 0x10
}
