package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Order("USD_JPY", 4500, "filled")
	r.Order("USD_MXN", -4500, "filled")
	r.Order("USD_MXN", -4500, "rejected")
	r.Trim("TRY_JPY")
	r.Trim("TRY_JPY")
	r.Job("protect", "healthy")
	r.Maintenance(131.5)
	r.Swap(2400)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("USD_JPY", "buy", "filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("USD_MXN", "sell", "filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("USD_MXN", "sell", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.trims.WithLabelValues("TRY_JPY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobs.WithLabelValues("protect", "healthy")))
	assert.Equal(t, 131.5, testutil.ToFloat64(r.maintenance))
	assert.Equal(t, 2400.0, testutil.ToFloat64(r.swap))
}

func TestRecorder_Push(t *testing.T) {
	t.Parallel()

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.Job("accumulate", "submitted")

	require.NoError(t, r.Push(context.Background(), srv.URL, "carry"))
	assert.Equal(t, "/metrics/job/carry", gotPath)
	assert.True(t, strings.Contains(gotBody, "carry_jobs_total"))
}

func TestRecorder_PushDisabled(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewRecorder().Push(context.Background(), "", "carry"))
}
