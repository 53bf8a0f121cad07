package bytecode

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarshalChunkRoundTrip(t *testing.T) {
	c := sampleChunk()

	data, err := MarshalChunk(c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}

	got, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalChunkIsDeterministic(t *testing.T) {
	a, err := MarshalChunk(sampleChunk())
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalChunk(sampleChunk())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same chunk differ")
	}
}

func TestUnmarshalChunkRejects(t *testing.T) {
	if _, err := UnmarshalChunk([]byte{0xFF, 0x00}); err == nil {
		t.Error("garbage should not decode")
	}

	c := sampleChunk()
	c.Version = ChunkVersion + 1
	data, err := MarshalChunk(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalChunk(data); err == nil {
		t.Error("newer version should be rejected")
	}
}
