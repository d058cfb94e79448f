package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	err          error
	msgs         []published
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(f.err)
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTPublisher_TopicPerType(t *testing.T) {
	client := &fakeMQTT{}
	p := newMQTTPublisher(client, "visakal/applications", 1, zap.NewNop())

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{Type: FormSubmitted, SessionID: "s1", CountryID: "thailand", Beneficiaries: 2, At: at})
	require.NoError(t, err)

	require.Len(t, client.msgs, 1)
	assert.Equal(t, "visakal/applications/form.submitted", client.msgs[0].topic)
	assert.Equal(t, byte(1), client.msgs[0].qos)

	var got Event
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 2, got.Beneficiaries)
	assert.True(t, got.At.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_BrokerError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	p := newMQTTPublisher(client, "visakal/applications", 0, zap.NewNop())

	err := p.Publish(context.Background(), Event{Type: PaymentExecuted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestStreamPublisher_XAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewStreamPublisher(client, "visakal:application-events", 0)
	ctx := context.Background()

	at := time.Unix(1773478800, 0).UTC()
	require.NoError(t, p.Publish(ctx, Event{Type: ApplicationCreated, RequestID: "req-1", At: at}))
	require.NoError(t, p.Publish(ctx, Event{Type: PaymentExecuted, RequestID: "req-1", Outcome: "redirect", At: at}))

	msgs, err := client.XRange(ctx, "visakal:application-events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "application.created", msgs[0].Values["type"])
	assert.Equal(t, "1773478800", msgs[0].Values["timestamp"])

	var second Event
	require.NoError(t, json.Unmarshal([]byte(msgs[1].Values["data"].(string)), &second))
	assert.Equal(t, "redirect", second.Outcome)
	assert.NoError(t, p.Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: FormOpened}))
	assert.NoError(t, p.Close())
}
