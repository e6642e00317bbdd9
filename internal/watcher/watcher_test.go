package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-uplink/internal/api"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

func TestWatcher(t *testing.T) {
	app := api.New(api.AppOptions{})
	server := httptest.NewServer(app.Router())
	defer server.Close()
	defer app.Feed.Close()

	require.NoError(t, app.Feed.PublishDecision(context.Background(), uplink.Decision{Revision: 1, MaxBandwidthKbps: 1400}))

	decisions := make(chan uplink.Decision, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/uplink/ws"
		done <- New(url).Watch(ctx, func(d uplink.Decision) { decisions <- d })
	}()

	next := func() uplink.Decision {
		t.Helper()
		select {
		case d := <-decisions:
			return d
		case <-time.After(2 * time.Second):
			t.Fatal("no decision")
		}
		return uplink.Decision{}
	}

	assert.Equal(t, uint64(1), next().Revision)

	require.NoError(t, app.Feed.PublishDecision(context.Background(), uplink.Decision{Revision: 2, MaxBandwidthKbps: 933}))
	assert.Equal(t, 933, next().MaxBandwidthKbps)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatcher_DialError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	err := New(url).Watch(context.Background(), func(uplink.Decision) {})
	assert.Error(t, err)
}
