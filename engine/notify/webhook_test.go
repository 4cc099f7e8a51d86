package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Notify(t *testing.T) {
	t.Run("Should post the report as JSON", func(t *testing.T) {
		var got webhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		n, err := NewWebhook(&config.WebhookConfig{URL: srv.URL, Timeout: time.Second})
		require.NoError(t, err)
		msg := SuccessMessage("run-9", 2, time.Second, time.Now())
		require.NoError(t, n.Notify(context.Background(), msg))
		assert.Equal(t, "run-9", got.RunID)
		assert.Equal(t, SubjectSuccess, got.Subject)
		assert.Equal(t, "success", got.Status)
		assert.Equal(t, msg.Body, got.Body)
	})

	t.Run("Should retry server errors and then fail", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		n, err := NewWebhook(&config.WebhookConfig{URL: srv.URL, Timeout: time.Second})
		require.NoError(t, err)
		err = n.Notify(context.Background(), Message{Subject: SubjectFailure})
		assert.ErrorContains(t, err, "unexpected status 502")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		n, err := NewWebhook(&config.WebhookConfig{URL: srv.URL})
		require.NoError(t, err)
		err = n.Notify(context.Background(), Message{Subject: SubjectFailure})
		assert.ErrorContains(t, err, "unexpected status 400")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should require a url", func(t *testing.T) {
		_, err := NewWebhook(&config.WebhookConfig{})
		assert.Error(t, err)
	})
}
