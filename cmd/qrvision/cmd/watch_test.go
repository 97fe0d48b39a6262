package cmd

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/trigger"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

type watchStep struct {
	labels []string
	err    error
}

// scriptedSource replays steps; the last step repeats forever.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []watchStep
	calls   int
	cameras []string
}

func (s *scriptedSource) DetectionsFromCamera(_ context.Context, cameraName string) ([]detection.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	s.cameras = append(s.cameras, cameraName)
	if step.err != nil {
		return nil, step.err
	}
	dets := make([]detection.Detection, 0, len(step.labels))
	for _, l := range step.labels {
		dets = append(dets, detection.New(image.Rect(0, 0, 10, 10), l))
	}
	return dets, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (o *recordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return o.err
}

func (o *recordingOpener) URLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

func TestWatch(t *testing.T) {
	tests := []struct {
		name      string
		steps     []watchStep
		wantURLs  []string
		wantCalls int
	}{
		{
			name: "opens the last payload and exits",
			steps: []watchStep{
				{err: errors.New("camera offline")},
				{},
				{labels: []string{"example.com/a", "example.com/b"}},
			},
			wantURLs:  []string{"http://example.com/b"},
			wantCalls: 3,
		},
		{
			name: "invalid URLs keep polling",
			steps: []watchStep{
				{labels: []string{"ftp://example.com/file"}},
				{labels: []string{"not a url at all"}},
				{labels: []string{"https://example.com/ok"}},
			},
			wantURLs:  []string{"https://example.com/ok"},
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{steps: tt.steps}
			opener := &recordingOpener{}

			err := watch(context.Background(), src, opener, watchOptions{
				Camera:        "camera-1",
				Interval:      time.Millisecond,
				ExitOnTrigger: true,
			}, nil, slog.New(slog.DiscardHandler))
			require.NoError(t, err)

			assert.Equal(t, tt.wantURLs, opener.URLs())
			assert.Equal(t, tt.wantCalls, src.Calls())
			for _, cam := range src.cameras {
				assert.Equal(t, "camera-1", cam)
			}
		})
	}
}

func TestWatchFailingOpenerKeepsPolling(t *testing.T) {
	src := &scriptedSource{steps: []watchStep{{labels: []string{"example.com"}}}}
	opener := &recordingOpener{err: errors.New("no browser")}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := watch(ctx, src, opener, watchOptions{Interval: 5 * time.Millisecond, ExitOnTrigger: true},
		nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Greater(t, src.Calls(), 1)
	assert.NotEmpty(t, opener.URLs())
}

func TestWatchWithoutExitOnTrigger(t *testing.T) {
	src := &scriptedSource{steps: []watchStep{{labels: []string{"example.com"}}}}
	opener := &recordingOpener{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := watch(ctx, src, opener, watchOptions{Interval: 5 * time.Millisecond}, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Greater(t, len(opener.URLs()), 1)
}

func TestWatchWithoutOpener(t *testing.T) {
	src := &scriptedSource{steps: []watchStep{{labels: []string{"example.com"}}}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := watch(ctx, src, nil, watchOptions{Interval: 5 * time.Millisecond, ExitOnTrigger: true},
		nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Greater(t, src.Calls(), 1)
}

func TestWatchQuit(t *testing.T) {
	src := &scriptedSource{steps: []watchStep{{}}}
	quit := make(chan struct{})
	close(quit)

	err := watch(context.Background(), src, &recordingOpener{}, watchOptions{Interval: time.Hour},
		quit, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls())
}

func TestWatchCommandRequiresAddress(t *testing.T) {
	isolate(t)

	_, _, err := executeCommand(t, "watch")
	require.ErrorIs(t, err, errNoAddress)
}

func TestQuitOnKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantQuit bool
	}{
		{name: "q line", input: "x\nq\n", wantQuit: true},
		{name: "upper case with spaces", input: "  Q  \n", wantQuit: true},
		{name: "other input", input: "quit\n", wantQuit: false},
		{name: "no input", input: "", wantQuit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quit := quitOnKey(strings.NewReader(tt.input))
			select {
			case <-quit:
				assert.True(t, tt.wantQuit, "unexpected quit")
			case <-time.After(50 * time.Millisecond):
				assert.False(t, tt.wantQuit, "expected quit")
			}
		})
	}
}

func TestNewOpener(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	assert.Nil(t, newOpener(vision.TriggerNone, logger))
	assert.IsType(t, trigger.LogOpener{}, newOpener(vision.TriggerLog, logger))
	assert.NotNil(t, newOpener(vision.TriggerOpen, logger))
}
