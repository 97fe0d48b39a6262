package trigger

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		payload string
		expect  string
		wantErr bool
	}{
		{"http://example.com", "http://example.com", false},
		{"https://example.com/a?b=c", "https://example.com/a?b=c", false},
		{"HTTPS://Example.com", "HTTPS://Example.com", false},
		{"example.com/path", "http://example.com/path", false},
		{"www.example.com", "http://www.example.com", false},
		{"ftp://x", "", true},
		{"mailto:someone@example.com", "", true},
		{"http://", "", true},
		{"", "", true},
		{"hello world", "", true},
		{"/just/a/path", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := NormalizeURL(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestSystemOpener(t *testing.T) {
	noLook := func(string) (string, error) { return "", exec.ErrNotFound }
	tests := []struct {
		goos   string
		expect []string
	}{
		{"linux", []string{"xdg-open", "u"}},
		{"freebsd", []string{"xdg-open", "u"}},
		{"darwin", []string{"open", "u"}},
		{"windows", []string{"cmd", "/c", "start", "", "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			o, err := systemOpener(tt.goos, noLook)
			require.NoError(t, err)
			co, ok := o.(*CommandOpener)
			require.True(t, ok)
			assert.Equal(t, tt.expect, co.Command("u"))
		})
	}
}

func TestSystemOpener_ProbesUnknownOS(t *testing.T) {
	var probed []string
	look := func(name string) (string, error) {
		probed = append(probed, name)
		if name == "open" {
			return "/usr/bin/open", nil
		}
		return "", exec.ErrNotFound
	}
	o, err := systemOpener("plan9", look)
	require.NoError(t, err)
	assert.Equal(t, []string{"xdg-open", "open"}, probed)
	assert.Equal(t, "open", o.(*CommandOpener).Name)
}

func TestSystemOpener_NoneAvailable(t *testing.T) {
	_, err := systemOpener("plan9", func(string) (string, error) { return "", exec.ErrNotFound })
	assert.ErrorIs(t, err, ErrNoOpener)
}

func TestCommandOpener_Open(t *testing.T) {
	var got []string
	o := &CommandOpener{Name: "xdg-open", start: func(cmd *exec.Cmd) error {
		got = cmd.Args
		return nil
	}}
	require.NoError(t, o.Open(context.Background(), "http://example.com"))
	assert.Equal(t, []string{"xdg-open", "http://example.com"}, got)
	assert.Equal(t, "xdg-open <url>", o.String())
}

func TestCommandOpener_StartFailure(t *testing.T) {
	o := &CommandOpener{Name: "xdg-open", start: func(*exec.Cmd) error { return exec.ErrNotFound }}
	err := o.Open(context.Background(), "http://example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestCommandOpener_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	o := &CommandOpener{Name: "xdg-open", start: func(*exec.Cmd) error { called = true; return nil }}
	assert.ErrorIs(t, o.Open(ctx, "http://example.com"), context.Canceled)
	assert.False(t, called)
}

func TestTrigger_Fire(t *testing.T) {
	var opened []string
	opener := FuncOpener(func(_ context.Context, url string) error {
		opened = append(opened, url)
		return nil
	})
	tr := New(opener, slog.New(slog.DiscardHandler))

	assert.True(t, tr.Fire(context.Background(), "example.com"))
	assert.False(t, tr.Fire(context.Background(), "ftp://x"))
	assert.Equal(t, []string{"http://example.com"}, opened)
}

func TestTrigger_FireOpenerError(t *testing.T) {
	opener := FuncOpener(func(context.Context, string) error { return errors.New("no display") })
	tr := New(opener, slog.New(slog.DiscardHandler))
	assert.NotPanics(t, func() {
		assert.False(t, tr.Fire(context.Background(), "http://example.com"))
	})
}

func TestTrigger_NilOpenerLogs(t *testing.T) {
	tr := New(nil, slog.New(slog.DiscardHandler))
	assert.True(t, tr.Fire(context.Background(), "https://example.com"))
}
