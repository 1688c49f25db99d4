package blockfs

import "testing"

func TestVCBMarshalRoundTrip(t *testing.T) {
	v := &VCB{
		Signature:                   Magic,
		NumBlocks:                   19531,
		BlockSize:                   BlockSize,
		FreespaceStart:              1,
		FirstFreeBlock:              78,
		NumAvailableFreespaceBlocks: 19453,
		NumFreespaceBlocks:          77,
		RootDirBlock:                78,
		RootDirBlocks:               7,
	}
	if err := v.setVolumeName("MY VOLUME"); err != nil {
		t.Fatalf("setVolumeName: %v", err)
	}

	buf, err := marshalVCB(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(buf) != BlockSize {
		t.Fatalf("expected block-sized output, got %d", len(buf))
	}

	got, err := unmarshalVCB(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Signature != Magic || got.NumBlocks != 19531 || got.RootDirBlock != 78 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.volumeName() != "MY VOLUME" {
		t.Fatalf("volume name mismatch: %q", got.volumeName())
	}
}

func TestNumberOfFATBlocksScenario(t *testing.T) {
	if got, want := numberOfFATBlocks(19531), int64(77); got != want {
		t.Fatalf("numberOfFATBlocks(19531) = %d, want %d", got, want)
	}
}
