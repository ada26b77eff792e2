package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/echocode/echo/backend/internal/config"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
)

// echoRecognizer reports the number of audio bytes received as the transcript.
type echoRecognizer struct {
	mu      sync.Mutex
	handler capture.Handler
	total   int
	chunks  []int
}

func (r *echoRecognizer) Subscribe(_ context.Context, sessionID string, handler capture.Handler) (capture.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
	return r, nil
}

func (r *echoRecognizer) Unsubscribe() error { return nil }

func (r *echoRecognizer) PushAudio(chunk []byte) error {
	r.mu.Lock()
	r.total += len(chunk)
	r.chunks = append(r.chunks, len(chunk))
	total, handler := r.total, r.handler
	r.mu.Unlock()

	handler(capturemodel.Event{Text: strings.Repeat("a", total/1000)})
	return nil
}

func TestProbeChunksAudio(t *testing.T) {
	rec := &echoRecognizer{}
	var out bytes.Buffer
	cfg := config.SpeechConfig{SampleRate: 16000}
	opts := probeOptions{chunk: 100 * time.Millisecond, settle: time.Millisecond}

	err := probe(context.Background(), &out, cfg, bytes.NewReader(make([]byte, 8000)), opts, rec)
	require.NoError(t, err)

	// 16000 Hz * 2 bytes * 100ms = 3200 bytes per chunk.
	require.Equal(t, []int{3200, 3200, 1600}, rec.chunks)
	require.Contains(t, out.String(), "[listening] aaa\n")
	require.True(t, strings.HasSuffix(out.String(), "final: aaaaaaaa\n"))
}

type failingRecognizer struct{ echoRecognizer }

func (r *failingRecognizer) PushAudio(chunk []byte) error {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	handler(capturemodel.Event{Err: context.DeadlineExceeded})
	return nil
}

func TestProbeReportsRecognitionFailure(t *testing.T) {
	rec := &failingRecognizer{}
	var out bytes.Buffer
	opts := probeOptions{chunk: 100 * time.Millisecond, settle: time.Millisecond}

	err := probe(context.Background(), &out, config.SpeechConfig{SampleRate: 16000}, bytes.NewReader(make([]byte, 100)), opts, rec)
	require.ErrorContains(t, err, capture.FailureMessage)
}
