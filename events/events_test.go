package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	at := time.Date(2024, 8, 28, 13, 0, 0, 0, time.FixedZone("BRT", -3*60*60))
	e := New(TicketClosed, "g1", "c1", "alice", "staff", at)

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, e.At.Location())
	assert.True(t, at.Equal(e.At))

	other := New(TicketClosed, "g1", "c1", "alice", "staff", at)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestPublishing(t *testing.T) {
	e := New(TicketCreated, "g1", "c1", "alice", "alice", time.Now())

	msg, err := publishing(e)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, e.ID, msg.MessageId)
	assert.Equal(t, "ticket.created", msg.Type)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, e.ChannelID, decoded.ChannelID)
	assert.Equal(t, e.Type, decoded.Type)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
