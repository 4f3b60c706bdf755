package tables

// CAT is a decoded Conditional Access Table section, used to locate the
// CA system's EMM PID (spec.md §4.7.4).
type CAT struct {
	VersionNumber uint8
	CurrentNext   bool
	CADescs       []CADescriptor
}

// ParseCAT decodes a full CAT section.
func ParseCAT(section []byte) (*CAT, error) {
	body, err := stripPointer(section)
	if err != nil {
		return nil, err
	}
	if len(body) < 8 {
		return nil, ErrTruncated
	}
	if body[0] != TableIDCAT {
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
	cat := &CAT{
		VersionNumber: (full[5] >> 1) & 0x1F,
		CurrentNext:   full[5]&0x01 != 0,
	}
	cat.CADescs = parseCADescriptors(full[8 : len(full)-4])
	return cat, nil
}
