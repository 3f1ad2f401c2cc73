package queue

import (
	"strings"
	"testing"
)

func TestDecodePayloadParsesWellFormedSignal(t *testing.T) {
	payload := `{"signalType":"ninja","tokenMint":"mintA","tokenSymbol":"FOO","stopLossPercent":25,"takeProfitPercent":50,"strength":"high","timestamp":1234}`

	sig, ok, err := decodePayload(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a well-formed payload")
	}
	if sig.TokenMint != "mintA" || sig.Class != "ninja" {
		t.Errorf("sig = %+v", sig)
	}
}

func TestDecodePayloadDiscardsMissingSignalType(t *testing.T) {
	payload := `{"tokenMint":"mintA","stopLossPercent":25}`

	sig, ok, err := decodePayload(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a payload missing signalType, got %+v", sig)
	}
}

func TestDecodePayloadReturnsErrorOnMalformedJSON(t *testing.T) {
	_, ok, err := decodePayload(`{not json`)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	if ok {
		t.Fatal("expected ok=false alongside the error")
	}
}

func TestPreviewTruncatesLongPayloads(t *testing.T) {
	long := strings.Repeat("x", previewLen+50)
	got := preview(long)
	if len(got) != previewLen+len("...") {
		t.Errorf("preview length = %d, want %d", len(got), previewLen+len("..."))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected truncated preview to end with ellipsis")
	}
}

func TestPreviewLeavesShortPayloadsUnchanged(t *testing.T) {
	short := `{"a":1}`
	if got := preview(short); got != short {
		t.Errorf("preview(%q) = %q, want unchanged", short, got)
	}
}
