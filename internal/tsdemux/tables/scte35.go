package tables

// SCTE35Splice is a minimal decode of an SCTE-35 splice_info_section: just
// enough to surface a cue as an ad-insertion event on the ES output
// (spec.md §1 lists SCTE-35 among the supported PSI tables; full command
// decoding beyond splice_insert is out of scope).
type SCTE35Splice struct {
	SpliceCommandType uint8
	SpliceEventID     uint32
	OutOfNetwork      bool
	PTSOrig           uint64
	HasPTS            bool
}

const spliceCommandInsert = 0x05

// ParseSCTE35 decodes a splice_info_section with a splice_insert command
// carrying an immediate or PTS-scheduled splice point.
func ParseSCTE35(section []byte) (*SCTE35Splice, error) {
	body, err := stripPointer(section)
	if err != nil {
		return nil, err
	}
	if len(body) < 14 || body[0] != TableIDSCTE35 {
		return nil, ErrWrongTable
	}
	secLen := int(body[1]&0x0F)<<8 | int(body[2])
	if len(body) < 3+secLen {
		return nil, ErrTruncated
	}
	full := body[:3+secLen]
	off := 3
	off += 1 // protocol_version
	off += 5 // encrypted_packet, encryption_algorithm, pts_adjustment (33 bits)
	off += 1 // cw_index
	if off+4 > len(full) {
		return nil, ErrTruncated
	}
	// tier (12 bits) and splice_command_length (12 bits) share three bytes.
	spliceCommandLength := int(full[off+1]&0x0F)<<8 | int(full[off+2])
	spliceCommandType := full[off+3]
	off += 4
	splice := &SCTE35Splice{SpliceCommandType: spliceCommandType}
	if spliceCommandType != spliceCommandInsert {
		return splice, nil
	}
	if off+spliceCommandLength > len(full) || spliceCommandLength < 5 {
		return splice, nil
	}
	cmd := full[off : off+spliceCommandLength]
	splice.SpliceEventID = uint32(cmd[0])<<24 | uint32(cmd[1])<<16 | uint32(cmd[2])<<8 | uint32(cmd[3])
	spliceEventCancel := cmd[4]&0x80 != 0
	if spliceEventCancel || len(cmd) < 6 {
		return splice, nil
	}
	splice.OutOfNetwork = cmd[5]&0x80 != 0
	programSplice := cmd[5]&0x40 != 0
	spliceImmediate := cmd[5]&0x10 != 0
	if programSplice && !spliceImmediate && len(cmd) >= 11 {
		// splice_time(): time_specified_flag in high bit of byte 6
		if cmd[6]&0x80 != 0 {
			pts := uint64(cmd[6]&0x01)<<32 | uint64(cmd[7])<<24 | uint64(cmd[8])<<16 | uint64(cmd[9])<<8 | uint64(cmd[10])
			splice.PTSOrig = pts
			splice.HasPTS = true
		}
	}
	return splice, nil
}
