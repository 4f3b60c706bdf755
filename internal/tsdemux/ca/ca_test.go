package ca

import "testing"

func TestNullDecodersReportNoEntitlement(t *testing.T) {
	var emm EMMDecoder = NullEMMDecoder{}
	if err := emm.HandleEMM([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := emm.ControlWordFor(Entitlement{ESID: 1, ONID: 2}); ok {
		t.Fatalf("expected no control word from the null decoder")
	}

	var ecm ECMDecoder = NullECMDecoder{}
	if _, ok, err := ecm.HandleECM([]byte{0x03}); ok || err != nil {
		t.Fatalf("expected no control word and no error, got ok=%v err=%v", ok, err)
	}
}
