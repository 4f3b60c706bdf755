package tables

// SDTService is one service_id -> name mapping decoded from the service
// descriptor (tag 0x48) inside an SDT entry.
type SDTService struct {
	ServiceID   uint16
	RunningStat uint8
	ServiceName string
	ProviderName string
}

// SDT is a decoded Service Description Table section.
type SDT struct {
	TransportStreamID uint16
	OriginalNetworkID uint16
	Services          []SDTService
}

// ParseSDT decodes a full SDT section.
func ParseSDT(section []byte) (*SDT, error) {
	body, err := stripPointer(section)
	if err != nil {
		return nil, err
	}
	if len(body) < 11 {
		return nil, ErrTruncated
	}
	if body[0] != TableIDSDT && body[0] != TableIDSDTOther {
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
	sdt := &SDT{
		TransportStreamID: uint16(full[3])<<8 | uint16(full[4]),
		OriginalNetworkID: uint16(full[8])<<8 | uint16(full[9]),
	}
	off := 11
	end := len(full) - 4
	for off+5 <= end {
		svcID := uint16(full[off])<<8 | uint16(full[off+1])
		runningAndLoop := full[off+3]
		loopLen := int(runningAndLoop&0x0F)<<8 | int(full[off+4])
		running := (full[off+3] >> 5) & 0x07
		off += 5
		if off+loopLen > end {
			return nil, ErrTruncated
		}
		svc := SDTService{ServiceID: svcID, RunningStat: running}
		descLoop := full[off : off+loopLen]
		p := 0
		for p+2 <= len(descLoop) {
			tag, length := descLoop[p], int(descLoop[p+1])
			p += 2
			if p+length > len(descLoop) {
				break
			}
			if tag == 0x48 && length >= 2 {
				d := descLoop[p : p+length]
				provLen := int(d[1])
				q := 2 + provLen
				if q < len(d) {
					svc.ProviderName = string(d[2:q])
					nameLen := int(d[q])
					q++
					if q+nameLen <= len(d) {
						svc.ServiceName = string(d[q : q+nameLen])
					}
				}
			}
			p += length
		}
		sdt.Services = append(sdt.Services, svc)
		off += loopLen
	}
	return sdt, nil
}
