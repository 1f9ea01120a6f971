package keeshond

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalOrderAndDisconnect(t *testing.T) {
	var s = NewSignal[int]()
	var got []string

	s.Connect(func(int) { got = append(got, "a") })
	var disconnectB = s.Connect(func(int) { got = append(got, "b") })
	s.Connect(func(int) { got = append(got, "c") })

	s.Emit(1)
	assert.Equal(t, []string{"a", "b", "c"}, got, "connection order")

	got = nil
	disconnectB()
	s.Emit(2)
	assert.Equal(t, []string{"a", "c"}, got)

	// Disconnecting twice is harmless.
	disconnectB()
}

func TestSignalPanickingSubscriber(t *testing.T) {
	var s = NewSignal[string]()
	var reached = false

	s.Connect(func(string) { panic("buggy subscriber") })
	s.Connect(func(string) { reached = true })

	assert.NotPanics(t, func() { s.Emit("x") })
	assert.True(t, reached, "later subscribers still run")
}
