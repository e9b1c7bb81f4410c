package metrics

import (
    "io"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
    m := New()

    m.Initiation("initiated")
    m.Initiation("initiated")
    m.Initiation("provider_unavailable")
    m.Webhook("settled")
    m.Payout("approve", "ok")

    assert.Equal(t, 2.0, testutil.ToFloat64(m.initiations.WithLabelValues("initiated")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.initiations.WithLabelValues("provider_unavailable")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("settled")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.payouts.WithLabelValues("approve", "ok")))
}

func TestSeparateRegistries(t *testing.T) {
    a, b := New(), New()
    a.Webhook("settled")

    assert.Equal(t, 0.0, testutil.ToFloat64(b.webhooks.WithLabelValues("settled")))
}

func TestHandlerExposesMetrics(t *testing.T) {
    m := New()
    m.ObserveRequest(http.MethodPost, "/v1/payments", http.StatusOK, 120*time.Millisecond)
    m.Webhook("already_settled")

    rec := httptest.NewRecorder()
    m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
    require.Equal(t, http.StatusOK, rec.Code)

    body, err := io.ReadAll(rec.Body)
    require.NoError(t, err)
    assert.Contains(t, string(body), `afrisens_webhook_notifications_total{outcome="already_settled"} 1`)
    assert.Contains(t, string(body), `afrisens_http_request_duration_seconds_count{method="POST",route="/v1/payments",status="200"} 1`)
}
