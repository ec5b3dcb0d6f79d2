package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	got []Alert
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.got = append(r.got, a)
	return r.err
}

func TestWebhookNotifier_PostsSlackPayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), Alert{
		Level:   LevelWarning,
		Title:   "reconciliation mismatch",
		Message: "2 accounts inconsistent",
		Fields:  map[string]any{"checked": 10, "inconsistent": 2},
	})
	require.NoError(t, err)

	assert.Contains(t, received.Text, "[WARNING] reconciliation mismatch")
	assert.Contains(t, received.Text, "checked: 10")
	assert.Contains(t, received.Text, "inconsistent: 2")
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}

	err := Multi{failing, ok}.Notify(context.Background(), Alert{Title: "t"})
	require.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestSend_SwallowsFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failing := &recordingNotifier{err: errors.New("down")}

	assert.NotPanics(t, func() {
		Send(context.Background(), logger, failing, Alert{Title: "t"})
		Send(context.Background(), logger, nil, Alert{Title: "t"})
	})
	require.Len(t, failing.got, 1)
	assert.False(t, failing.got[0].Time.IsZero())
}
