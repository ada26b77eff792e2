package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
)

func TestRelayDeliversToSubscriber(t *testing.T) {
	relay := NewRelayRecognizer(nil)
	require.ErrorIs(t, relay.Publish("lost", false, 0), ErrNoSubscriber)

	var got []capturemodel.Event
	sub, err := relay.Subscribe(context.Background(), "s1", func(ev capturemodel.Event) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	require.True(t, relay.Active())

	require.NoError(t, relay.Publish("hel", false, 0.5))
	require.NoError(t, relay.Publish("hello", true, 0.9))
	require.Len(t, got, 2)
	require.Equal(t, "s1", got[1].SessionID)
	require.Equal(t, "hello", got[1].Text)
	require.True(t, got[1].IsFinal)
	require.False(t, got[1].ReceivedAt.IsZero())

	require.NoError(t, sub.Unsubscribe())
	require.False(t, relay.Active())
	require.ErrorIs(t, relay.Publish("after", false, 0), ErrNoSubscriber)
}

func TestRelayStaleUnsubscribeKeepsNewSubscriber(t *testing.T) {
	relay := NewRelayRecognizer(nil)
	first, err := relay.Subscribe(context.Background(), "old", func(capturemodel.Event) {})
	require.NoError(t, err)

	var texts []string
	_, err = relay.Subscribe(context.Background(), "new", func(ev capturemodel.Event) {
		texts = append(texts, ev.Text)
	})
	require.NoError(t, err)

	require.NoError(t, first.Unsubscribe())
	require.True(t, relay.Active())
	require.NoError(t, relay.Publish("still here", false, 0))
	require.Equal(t, []string{"still here"}, texts)
}

func TestRelayDrivesController(t *testing.T) {
	relay := NewRelayRecognizer(nil)
	ctrl := capture.NewController(nil, relay)

	_, err := ctrl.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, relay.Publish("make a", false, 0))
	require.NoError(t, relay.Publish("make a list", true, 0))
	require.Equal(t, "make a list", ctrl.Transcript())

	require.NoError(t, relay.Fail(errors.New("not-allowed")))
	snap := ctrl.Snapshot()
	require.Equal(t, capture.FailureMessage, snap.Transcript)
	require.Equal(t, capturemodel.StatusIdle, snap.Status)
	require.False(t, relay.Active())
}
