package upipe

import (
	"testing"

	"github.com/snapetech/upipe-go/internal/uref"
)

func TestBinInputForwardsToFirstInner(t *testing.T) {
	var b BinInput
	sink := &recordingInput{name: "inner"}
	b.SetFirstInner(sink)
	u := uref.New()
	b.Input(u, nil)
	if len(sink.got) != 1 || sink.got[0] != u {
		t.Fatalf("expected uref forwarded to first inner pipe")
	}
}

func TestBinInputDropsUrefWhenNoInnerWired(t *testing.T) {
	var b BinInput
	u := uref.New()
	b.Input(u, nil) // must not panic with no first-inner pipe set
}

func TestBinOutputExposesLastInnerAsOutput(t *testing.T) {
	var b BinOutput
	last := &recordingInput{name: "last"}
	b.SetLastInner(last)
	if b.AsOutput() != last {
		t.Fatalf("expected AsOutput to return the wired last inner pipe")
	}
}
