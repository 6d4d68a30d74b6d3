package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lineage/pkg/types"
)

func TestWebSocketHub_PublishChange(t *testing.T) {
	hub := NewWebSocketHub(6380)
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)

	hub.PublishChange(types.ChangeEvent{
		ID:       "evt-1",
		UniqueID: "1001",
		Type:     types.ChangeAdded,
		Summary:  "Asset added",
	})

	select {
	case data := <-client.SendChan:
		var envelope changeEnvelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, "change_event", envelope.Type)
		assert.Equal(t, "1001", envelope.Data.UniqueID)
		assert.Equal(t, types.ChangeAdded, envelope.Data.Type)
	case <-time.After(time.Second):
		t.Fatal("no message broadcast to client")
	}
}

func TestWebSocketHub_SlowClientIsDropped(t *testing.T) {
	hub := NewWebSocketHub(6380)
	go hub.Run()
	defer hub.Stop()

	// Unbuffered send channel with nothing reading: the first broadcast
	// cannot be delivered and the client is dropped.
	slow := &MockClient{SendChan: make(chan []byte)}
	hub.Register(slow)

	healthy := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(healthy)

	hub.PublishChange(types.ChangeEvent{ID: "evt-1", UniqueID: "1001", Type: types.ChangeAdded})
	hub.PublishChange(types.ChangeEvent{ID: "evt-2", UniqueID: "1002", Type: types.ChangeAdded})

	received := 0
	timeout := time.After(time.Second)
	for received < 2 {
		select {
		case <-healthy.SendChan:
			received++
		case <-timeout:
			t.Fatalf("healthy client received %d of 2 messages", received)
		}
	}

	// The slow client's channel was closed on drop.
	select {
	case _, open := <-slow.SendChan:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("slow client channel was not closed")
	}
}

func TestWebSocketHub_Unregister(t *testing.T) {
	hub := NewWebSocketHub(6380)
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)
	hub.Unregister(client)

	// The unregistered client's channel is closed and it receives nothing.
	select {
	case _, open := <-client.SendChan:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed on unregister")
	}
}
