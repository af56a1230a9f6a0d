package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	m := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Record(ctx, jobs.Result{Kind: jobs.KindCleanupTokens, Status: jobs.StatusSucceeded, Count: 4, Started: now, Finished: now.Add(time.Second)}))
	require.NoError(t, m.Record(ctx, jobs.Result{Kind: jobs.KindCleanupTokens, Status: jobs.StatusSkipped}))
	require.NoError(t, m.Record(ctx, jobs.Result{Kind: jobs.KindCleanupTokens, Status: jobs.StatusFailed, Count: 9, Started: now, Finished: now}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("cleanup-tokens", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("cleanup-tokens", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("cleanup-tokens", "failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.jobItems.WithLabelValues("cleanup-tokens")))
	assert.Equal(t, float64(now.Add(time.Second).Unix()), testutil.ToFloat64(m.jobLastRun.WithLabelValues("cleanup-tokens")))
}

func TestAuthOutcome(t *testing.T) {
	m := New()
	m.AuthOutcome(AuthRefreshed)
	m.AuthOutcome(AuthRefreshed)
	m.AuthOutcome(AuthInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues(AuthRefreshed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues(AuthInvalid)))
}

func TestHandler(t *testing.T) {
	m := New()
	m.AuthOutcome(AuthOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `backoffice_auth_requests_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
