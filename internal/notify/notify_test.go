package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitRegistrationOrder(t *testing.T) {
	sig := New[func(string)]("update")
	var got []string

	sig.Connect(func(v string) { got = append(got, "a:"+v) })
	sig.Connect(func(v string) { got = append(got, "b:"+v) })
	sig.Connect(func(v string) { got = append(got, "c:"+v) })

	sig.Emit(func(h func(string)) { h("x") })

	assert.Equal(t, []string{"a:x", "b:x", "c:x"}, got)
	assert.Equal(t, "update", sig.Name())
	assert.Equal(t, 3, sig.Len())
}

func TestSelfDisconnectDuringEmit(t *testing.T) {
	sig := New[func()]("commit")
	var calls []string

	var self Connection
	self = sig.Connect(func() {
		calls = append(calls, "once")
		self.Disconnect()
	})
	sig.Connect(func() { calls = append(calls, "always") })

	sig.Emit(func(h func()) { h() })
	sig.Emit(func(h func()) { h() })

	assert.Equal(t, []string{"once", "always", "always"}, calls)
	assert.Equal(t, 1, sig.Len())
}

func TestDisconnectLaterSubscriberDuringEmit(t *testing.T) {
	sig := New[func()]("select")
	var calls int

	var victim Connection
	sig.Connect(func() { victim.Disconnect() })
	victim = sig.Connect(func() { calls++ })

	sig.Emit(func(h func()) { h() })

	assert.Zero(t, calls, "disconnected subscriber must not run in the same broadcast")
}

func TestConnectDuringEmitWaitsForNextBroadcast(t *testing.T) {
	sig := New[func()]("update")
	var late int

	sig.Connect(func() {
		if sig.Len() == 1 {
			sig.Connect(func() { late++ })
		}
	})

	sig.Emit(func(h func()) { h() })
	assert.Zero(t, late)

	sig.Emit(func(h func()) { h() })
	assert.Equal(t, 1, late)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sig := New[func()]("delete")
	conn := sig.Connect(func() {})

	conn.Disconnect()
	conn.Disconnect()
	Connection{}.Disconnect()

	assert.Zero(t, sig.Len())

	var calls int
	sig.Connect(func() { calls++ })
	conn.Disconnect()
	sig.Emit(func(h func()) { h() })
	assert.Equal(t, 1, calls, "stale handle must not remove a newer subscriber")
}
