package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPubsubEmitOrder(t *testing.T) {
	p := newPubsub()
	var got []string

	p.on("x", func(Frame) { got = append(got, "a") })
	p.on("x", func(Frame) { got = append(got, "b") })
	p.emit("x", Frame{})

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestPubsubEmitUnknownEvent(t *testing.T) {
	p := newPubsub()
	// emitting with no subscribers must not panic
	p.emit("nothing", Frame{})
}

func TestPubsubOffByIdentity(t *testing.T) {
	p := newPubsub()
	var aCalls, bCalls int
	a := func(Frame) { aCalls++ }
	b := func(Frame) { bCalls++ }

	p.on("x", a)
	p.on("x", b)
	p.off("x", a)
	p.emit("x", Frame{})

	assert.Zero(t, aCalls)
	assert.Equal(t, 1, bCalls)
}

func TestPubsubOffNilClearsAll(t *testing.T) {
	p := newPubsub()
	var calls int

	p.on("x", func(Frame) { calls++ })
	p.on("x", func(Frame) { calls++ })
	p.off("x", nil)
	p.emit("x", Frame{})

	assert.Zero(t, calls)
}

func TestPubsubOnNilIgnored(t *testing.T) {
	p := newPubsub()
	p.on("x", nil)
	p.emit("x", Frame{})
}
