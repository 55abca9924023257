package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"payroll.approved"}`)
	sig := Sign(payload, "whsec_test")

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, Verify(payload, "whsec_test", sig))
	assert.False(t, Verify(payload, "whsec_other", sig))
	assert.False(t, Verify([]byte(`{}`), "whsec_test", sig))
}

func TestDeliver(t *testing.T) {
	t.Run("signed post", func(t *testing.T) {
		var (
			gotBody   []byte
			gotHeader http.Header
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotHeader = r.Header.Clone()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		d := NewDispatcher(nil, time.Second)
		defer d.Close()

		req := DeliveryRequest{
			WebhookID: uuid.New(),
			URL:       srv.URL,
			Secret:    "s3cret",
			Event:     "payroll.paid",
			Payload:   []byte(`{"id":"1"}`),
		}
		status, err := d.Deliver(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, status)
		assert.Equal(t, req.Payload, gotBody)
		assert.Equal(t, "payroll.paid", gotHeader.Get(HeaderEvent))
		assert.Equal(t, req.WebhookID.String(), gotHeader.Get(HeaderWebhookID))
		assert.True(t, Verify(gotBody, "s3cret", gotHeader.Get(HeaderSignature)))
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		d := NewDispatcher(nil, time.Second)
		defer d.Close()

		status, err := d.Deliver(context.Background(), DeliveryRequest{URL: srv.URL, Payload: []byte(`{}`)})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, status)
	})
}

func TestEnqueueDrainsOnClose(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer srv.Close()

	d := NewDispatcher(nil, time.Second)
	for range 3 {
		require.True(t, d.Enqueue(DeliveryRequest{URL: srv.URL, Event: "payroll.approved", Payload: []byte(`{}`)}))
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, hits)
}
