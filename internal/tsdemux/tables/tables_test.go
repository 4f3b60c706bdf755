package tables

import "testing"

func appendCRC(body []byte) []byte {
	crc := CRC32(body)
	return append(body, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func buildPATSection(tsid uint16, nitPID uint16, entries []PATEntry) []byte {
	n := len(entries)
	if nitPID != 0x1FFF {
		n++
	}
	secLen := 5 + 4*n + 4 // after section_length field: ts_id..CRC
	body := []byte{
		TableIDPAT,
		byte(0xB0 | (secLen>>8)&0x0F), byte(secLen),
		byte(tsid >> 8), byte(tsid),
		0xC1, 0x00, 0x00,
	}
	if nitPID != 0x1FFF {
		body = append(body, 0x00, 0x00, byte(0xE0|(nitPID>>8)&0x1F), byte(nitPID))
	}
	for _, e := range entries {
		body = append(body, byte(e.ProgramNumber>>8), byte(e.ProgramNumber),
			byte(0xE0|(e.PMTPID>>8)&0x1F), byte(e.PMTPID))
	}
	full := appendCRC(body)
	return append([]byte{0x00}, full...) // pointer_field = 0
}

func TestParsePATRoundTrip(t *testing.T) {
	entries := []PATEntry{{ProgramNumber: 1, PMTPID: 0x1000}, {ProgramNumber: 2, PMTPID: 0x1001}}
	section := buildPATSection(7, 16, entries)
	pat, err := ParsePAT(section)
	if err != nil {
		t.Fatalf("ParsePAT: %v", err)
	}
	if pat.TransportStreamID != 7 || pat.NITPID != 16 {
		t.Fatalf("unexpected header: %+v", pat)
	}
	if len(pat.Entries) != 2 || pat.Entries[0] != entries[0] || pat.Entries[1] != entries[1] {
		t.Fatalf("unexpected entries: %+v", pat.Entries)
	}
}

func TestParsePATBadCRCRejected(t *testing.T) {
	section := buildPATSection(1, 0x1FFF, []PATEntry{{ProgramNumber: 1, PMTPID: 0x100}})
	section[len(section)-1] ^= 0xFF
	if _, err := ParsePAT(section); err != ErrBadCRC {
		t.Fatalf("expected ErrBadCRC, got %v", err)
	}
}

func buildPMTSection(progNum, pcrPID uint16, es []ESEntry) []byte {
	var esBytes []byte
	for _, e := range es {
		esBytes = append(esBytes, e.StreamType, byte(0xE0|(e.PID>>8)&0x1F), byte(e.PID), 0xF0, 0x00)
	}
	secLen := 9 + len(esBytes) + 4
	body := []byte{
		TableIDPMT,
		byte(0xB0 | (secLen>>8)&0x0F), byte(secLen),
		byte(progNum >> 8), byte(progNum),
		0xC1, 0x00, 0x00,
		byte(0xE0 | (pcrPID>>8)&0x1F), byte(pcrPID),
		0xF0, 0x00,
	}
	body = append(body, esBytes...)
	full := appendCRC(body)
	return append([]byte{0x00}, full...)
}

func TestParsePMTRoundTrip(t *testing.T) {
	es := []ESEntry{{StreamType: 0x1B, PID: 0x100}, {StreamType: 0x0F, PID: 0x101}}
	section := buildPMTSection(1, 0x100, es)
	pmt, err := ParsePMT(section)
	if err != nil {
		t.Fatalf("ParsePMT: %v", err)
	}
	if pmt.ProgramNumber != 1 || pmt.PCRPID != 0x100 {
		t.Fatalf("unexpected header: %+v", pmt)
	}
	if len(pmt.ES) != 2 || pmt.ES[0].PID != 0x100 || pmt.ES[1].PID != 0x101 {
		t.Fatalf("unexpected ES list: %+v", pmt.ES)
	}
}

func TestCADescriptorIsDVBCISSA(t *testing.T) {
	d := CADescriptor{SystemID: 0x2610, ScramblingMode: 0x10}
	if !d.IsDVBCISSA() {
		t.Fatalf("expected DVB-CISSA match")
	}
	d.ScramblingMode = 0x01
	if d.IsDVBCISSA() {
		t.Fatalf("expected no match for different scrambling mode")
	}
}
