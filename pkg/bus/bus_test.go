package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNilBusPublishIsNoOp(t *testing.T) {
	var b *Bus
	require.NoError(t, b.Publish(context.Background(), "courier.test.noop", map[string]string{"k": "v"}))
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	url := os.Getenv("COURIER_TEST_NATS_URL")
	if url == "" {
		t.Skip("COURIER_TEST_NATS_URL not set")
	}

	b, err := New(url)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	require.NoError(t, b.EnsureStream("COURIER_TEST", []string{"courier.test.>"}))
	// A second call against the existing stream is a no-op.
	require.NoError(t, b.EnsureStream("COURIER_TEST", []string{"courier.test.>"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, "courier.test.events", "bus-round-trip",
		func(_ context.Context, data []byte) error {
			select {
			case received <- data:
			default:
			}
			return nil
		})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.NoError(t, b.Publish(ctx, "courier.test.events", map[string]string{"hello": "world"}))

	select {
	case data := <-received:
		require.JSONEq(t, `{"hello":"world"}`, string(data))
	case <-ctx.Done():
		t.Fatal("event was not delivered to the durable consumer")
	}
}
