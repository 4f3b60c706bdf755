package tables

// NIT carries just enough of the Network Information Table for DVB
// service enumeration: the network id and the network name descriptor. The
// transport stream loop is not decoded, and full descriptor decoding beyond
// the network name is out of scope (spec.md §1 non-goals: bit-exact
// reproduction of wire formats beyond what the demux core must parse).
type NIT struct {
	NetworkID   uint16
	NetworkName string
}

// ParseNIT decodes the network_name descriptor (tag 0x40) out of an NIT
// section; other descriptors are skipped.
func ParseNIT(section []byte) (*NIT, error) {
	body, err := stripPointer(section)
	if err != nil {
		return nil, err
	}
	if len(body) < 8 {
		return nil, ErrTruncated
	}
	if body[0] != TableIDNIT && body[0] != TableIDNITOther {
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
	nit := &NIT{NetworkID: uint16(full[3])<<8 | uint16(full[4])}
	descLen := int(full[8]&0x0F)<<8 | int(full[9])
	off := 10
	end := off + descLen
	if end > len(full) {
		return nit, nil
	}
	loop := full[off:end]
	p := 0
	for p+2 <= len(loop) {
		tag, length := loop[p], int(loop[p+1])
		p += 2
		if p+length > len(loop) {
			break
		}
		if tag == 0x40 {
			nit.NetworkName = string(loop[p : p+length])
		}
		p += length
	}
	return nit, nil
}
