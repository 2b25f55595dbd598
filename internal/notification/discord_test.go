package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/clubgate/internal/domain"
)

func webhookServer(t *testing.T, status int) (*httptest.Server, <-chan discordWebhook) {
	t.Helper()
	got := make(chan discordWebhook, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload discordWebhook
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			got <- payload
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestDiscordService_SendSuccess(t *testing.T) {
	t.Parallel()
	srv, got := webhookServer(t, http.StatusNoContent)

	svc := NewDiscordService(zerolog.Nop(), srv.URL)
	err := svc.SendSuccess(context.Background(), domain.WarmStats{
		RunID:           "run-1",
		Cache:           "clubsite-prefetch",
		EndpointsOK:     5,
		EndpointsFailed: 2,
		AssetsOK:        7,
		Duration:        1500 * time.Millisecond,
	})
	require.NoError(t, err)

	payload := <-got
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Equal(t, "Cache Warm Completed With Failures", embed.Title)
	assert.Equal(t, 0xffa500, embed.Color)
	assert.Equal(t, "5 ok, 2 failed", embed.Fields[0].Value)
	assert.Equal(t, "7 ok, 0 failed", embed.Fields[1].Value)
	assert.Equal(t, "1.5s", embed.Fields[3].Value)
}

func TestDiscordService_SendError(t *testing.T) {
	t.Parallel()
	srv, got := webhookServer(t, http.StatusOK)

	svc := NewDiscordService(zerolog.Nop(), srv.URL)
	require.NoError(t, svc.SendError(context.Background(), errors.New("storage unavailable")))

	payload := <-got
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Cache Warm Failed", payload.Embeds[0].Title)
	assert.Contains(t, payload.Embeds[0].Description, "storage unavailable")
}

func TestDiscordService_StatusError(t *testing.T) {
	t.Parallel()
	srv, _ := webhookServer(t, http.StatusTooManyRequests)

	svc := NewDiscordService(zerolog.Nop(), srv.URL)
	err := svc.SendError(context.Background(), errors.New("boom"))
	assert.ErrorContains(t, err, "status 429")
}

func TestService_NoWebhook(t *testing.T) {
	t.Parallel()

	svc := NewService(zerolog.Nop(), "")
	assert.NoError(t, svc.SendSuccess(context.Background(), domain.WarmStats{}))
	assert.NoError(t, svc.SendError(context.Background(), errors.New("ignored")))
}
