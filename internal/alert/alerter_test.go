package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:       AlertTypeTeleportFailed,
		Protocol:   "XCM",
		Chain:      "Polkadot",
		TeleportID: "tp1",
		Title:      "Teleport failed",
		Message:    "extrinsic dropped",
		Fields: map[string]string{
			"origin": "AssetHubPolkadot",
			"amount": "818",
		},
	}
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

// TestMultiAlerter_Send_AllChannels verifies that MultiAlerter fans out to
// every registered alerter on a single Send call.
func TestMultiAlerter_Send_AllChannels(t *testing.T) {
	slackSrv, slackReceived := countingServer(t, http.StatusOK)
	webhookSrv, webhookReceived := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(webhookSrv.URL))

	require.NoError(t, multi.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(1), slackReceived.Load())
	assert.Equal(t, int32(1), webhookReceived.Load())
}

// TestMultiAlerter_CooldownDedup verifies that the same alert for the same
// teleport is dispatched once per cooldown window.
func TestMultiAlerter_CooldownDedup(t *testing.T) {
	srv, received := countingServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))

	other := testAlert()
	other.TeleportID = "tp2"
	require.NoError(t, multi.Send(context.Background(), other))

	assert.Equal(t, int32(2), received.Load(), "repeat for tp1 is suppressed, tp2 goes through")
}

// TestMultiAlerter_CooldownExpiry verifies that after the cooldown window
// expires, a duplicate alert is dispatched again.
func TestMultiAlerter_CooldownExpiry(t *testing.T) {
	srv, received := countingServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	multi.nowFn = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	now = now.Add(2 * time.Minute)
	require.NoError(t, multi.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(2), received.Load())
}

// TestMultiAlerter_PartialFailure verifies that one failing channel does not
// stop delivery to the others.
func TestMultiAlerter_PartialFailure(t *testing.T) {
	failSrv, _ := countingServer(t, http.StatusInternalServerError)
	goodSrv, goodReceived := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	assert.Error(t, err)
	assert.Equal(t, int32(1), goodReceived.Load())
}

// TestSlackAlerter_PayloadFormat verifies the Slack text carries the emoji,
// type, route, teleport and sorted fields.
func TestSlackAlerter_PayloadFormat(t *testing.T) {
	var capturedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		capturedBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(capturedBody, &payload))
	text := payload["text"]

	assert.True(t, strings.HasPrefix(text, ":rotating_light:"))
	assert.Contains(t, text, "[TELEPORT_FAILED]")
	assert.Contains(t, text, "XCM/Polkadot")
	assert.Contains(t, text, "extrinsic dropped")
	assert.Contains(t, text, "- *teleport*: tp1")
	assert.Less(t, strings.Index(text, "*amount*"), strings.Index(text, "*origin*"), "fields are sorted")

	emojiTests := []struct {
		alertType AlertType
		emoji     string
	}{
		{AlertTypeTeleportFailed, ":rotating_light:"},
		{AlertTypeFundsWaitExhausted, ":hourglass:"},
		{AlertTypeRecovery, ":white_check_mark:"},
		{AlertType("OTHER"), ":warning:"},
	}
	for _, tc := range emojiTests {
		t.Run(fmt.Sprintf("emoji_%s", tc.alertType), func(t *testing.T) {
			var body []byte
			emojiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				body = b
				w.WriteHeader(http.StatusOK)
			}))
			defer emojiSrv.Close()

			err := NewSlackAlerter(emojiSrv.URL).Send(context.Background(), Alert{Type: tc.alertType, Title: "t", Message: "m"})
			require.NoError(t, err)

			var p map[string]string
			require.NoError(t, json.Unmarshal(body, &p))
			assert.True(t, strings.HasPrefix(p["text"], tc.emoji), "got: %s", p["text"])
		})
	}
}

// TestWebhookAlerter_PayloadFormat verifies the generic webhook JSON body.
func TestWebhookAlerter_PayloadFormat(t *testing.T) {
	var capturedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		capturedBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	webhook := NewWebhookAlerter(srv.URL)
	webhook.nowFn = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	a := testAlert()
	a.Type = AlertTypeFundsWaitExhausted
	require.NoError(t, webhook.Send(context.Background(), a))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(capturedBody, &payload))

	assert.Equal(t, "FUNDS_WAIT_EXHAUSTED", payload["type"])
	assert.Equal(t, "XCM", payload["protocol"])
	assert.Equal(t, "Polkadot", payload["chain"])
	assert.Equal(t, "tp1", payload["teleportId"])
	assert.Equal(t, "Teleport failed", payload["title"])
	assert.Equal(t, "2026-03-01T12:00:00Z", payload["time"])

	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "818", fields["amount"])
}

func TestFromURLs(t *testing.T) {
	assert.IsType(t, &NoopAlerter{}, FromURLs("", "", time.Minute, testLogger()))

	multi, ok := FromURLs("http://slack", "http://hook", time.Minute, testLogger()).(*MultiAlerter)
	require.True(t, ok)
	require.Len(t, multi.alerters, 2)
	assert.Equal(t, "slack", alerterName(multi.alerters[0]))
	assert.Equal(t, "webhook", alerterName(multi.alerters[1]))
}
