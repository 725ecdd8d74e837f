// Package domain holds the core types shared by ingestion and delivery.
package domain

import (
	"bytes"
	"io"
	"time"

	"github.com/google/uuid"
)

// Payload is one unit of binary data accepted for relay.
// The zero value is an empty payload. A Payload is never mutated after construction.
type Payload struct {
	id         uuid.UUID
	data       []byte
	receivedAt time.Time
}

// NewPayload copies data into a new Payload.
func NewPayload(data []byte) Payload {
	owned := make([]byte, len(data))
	copy(owned, data)
	return Payload{
		id:         uuid.New(),
		data:       owned,
		receivedAt: time.Now().UTC(),
	}
}

// ReadPayload reads r to EOF and wraps the result.
// The payload takes ownership of the bytes read; nothing else holds them.
func ReadPayload(r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		id:         uuid.New(),
		data:       data,
		receivedAt: time.Now().UTC(),
	}, nil
}

// ID identifies the payload in logs and traces.
func (p Payload) ID() uuid.UUID {
	return p.id
}

// ReceivedAt is when the submission was fully read.
func (p Payload) ReceivedAt() time.Time {
	return p.receivedAt
}

// Size returns the number of bytes.
func (p Payload) Size() int {
	return len(p.data)
}

// Bytes returns a copy of the content.
func (p Payload) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Reader returns a fresh read-only view of the content.
func (p Payload) Reader() *bytes.Reader {
	return bytes.NewReader(p.data)
}
