package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversToEveryConn(t *testing.T) {
	f := NewFanout(2, 16)
	defer f.Close()

	conns := []*Conn{testConn("t1"), testConn("t2"), testConn("t3")}
	payload := []byte(`{"event":"new_message"}`)

	f.Broadcast(conns, payload)

	for _, c := range conns {
		select {
		case got := <-c.send:
			assert.Equal(t, payload, got)
		case <-time.After(time.Second):
			t.Fatalf("conn %s never received payload", c.TransportID)
		}
	}
}

func TestFanoutSkipsFullQueues(t *testing.T) {
	f := NewFanout(1, 16)
	defer f.Close()

	full := newConn("full", nil, 1)
	full.send <- []byte("occupied")
	ok := testConn("ok")

	f.Broadcast([]*Conn{full, ok}, []byte("x"))

	select {
	case got := <-ok.send:
		require.Equal(t, []byte("x"), got)
	case <-time.After(time.Second):
		t.Fatal("healthy conn starved by a full one")
	}
	// The stuck conn keeps only its original frame.
	assert.Equal(t, []byte("occupied"), <-full.send)
}

func TestFanoutEmptyTargetsNoop(t *testing.T) {
	f := NewFanout(1, 1)
	defer f.Close()
	f.Broadcast(nil, []byte("x")) // must not block or panic
}
