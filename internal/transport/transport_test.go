package transport

import (
	"bytes"
	"testing"
)

func TestWriteFrameThenReadFullRoundTrips(t *testing.T) {
	payload := []byte("hello wire protocol")
	var buf bytes.Buffer
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var lenPrefix [4]byte
	if _, err := buf.Read(lenPrefix[:]); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	n := uint32(lenPrefix[0]) | uint32(lenPrefix[1])<<8 | uint32(lenPrefix[2])<<16 | uint32(lenPrefix[3])<<24
	if int(n) != len(payload) {
		t.Fatalf("length prefix = %d, want %d", n, len(payload))
	}

	got := make([]byte, n)
	if _, err := buf.Read(got); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("body = %q, want %q", got, payload)
	}
}
