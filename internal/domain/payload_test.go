package domain

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
)

func TestNewPayload_CopiesInput(t *testing.T) {
	src := []byte("hello")
	p := NewPayload(src)

	src[0] = 'j'

	if got := string(p.Bytes()); got != "hello" {
		t.Errorf("payload changed with its source: %q", got)
	}
	if p.Size() != 5 {
		t.Errorf("Size = %d, want 5", p.Size())
	}
	if p.ID() == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.ReceivedAt().IsZero() {
		t.Error("expected ReceivedAt to be set")
	}
}

func TestPayload_BytesReturnsCopy(t *testing.T) {
	p := NewPayload([]byte("abc"))

	b := p.Bytes()
	b[0] = 'x'

	if got := string(p.Bytes()); got != "abc" {
		t.Errorf("payload mutated through Bytes(): %q", got)
	}
}

func TestPayload_Reader(t *testing.T) {
	p := NewPayload([]byte{0x00, 0xff, 0x10})

	first, _ := io.ReadAll(p.Reader())
	second, _ := io.ReadAll(p.Reader())

	if !bytes.Equal(first, []byte{0x00, 0xff, 0x10}) {
		t.Errorf("unexpected content %v", first)
	}
	if !bytes.Equal(first, second) {
		t.Error("each Reader should start from the beginning")
	}
}

func TestReadPayload(t *testing.T) {
	p, err := ReadPayload(bytes.NewBufferString("body"))
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if string(p.Bytes()) != "body" {
		t.Errorf("content = %q, want body", p.Bytes())
	}

	p, err = ReadPayload(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadPayload of empty body failed: %v", err)
	}
	if p.Size() != 0 {
		t.Errorf("Size = %d, want 0", p.Size())
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadPayload_Error(t *testing.T) {
	_, err := ReadPayload(failingReader{})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestPayload_DistinctIDs(t *testing.T) {
	a := NewPayload(nil)
	b := NewPayload(nil)
	if a.ID() == b.ID() {
		t.Error("payloads should get distinct IDs")
	}
}
