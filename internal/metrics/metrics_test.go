package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

func TestRecordSyncApplied(t *testing.T) {
	m := New()
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	m.RecordSync(&cloudauth.SyncResult{
		Mappings: []cloudauth.Mapping{
			cloudauth.NewMapping("u1", cloudauth.UserToUser, "a", nil),
			cloudauth.NewMapping("u2", cloudauth.UserToUser, "b", nil),
			cloudauth.NewMapping("r1", cloudauth.RoleToNode, "", nil),
		},
		Applied:  true,
		Duration: 2 * time.Second,
	}, nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.mappings.WithLabelValues("user-to-user")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.mappings.WithLabelValues("role-to-user")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mappings.WithLabelValues("role-to-node")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(ResultApplied)))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestRecordSyncResults(t *testing.T) {
	m := New()
	m.RecordSync(&cloudauth.SyncResult{Skipped: true}, nil)
	m.RecordSync(&cloudauth.SyncResult{}, nil)
	m.RecordSync(&cloudauth.SyncResult{}, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(ResultSkipped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(ResultPrinted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(ResultFailed)))
}

func TestNilMetrics(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.RecordSync(&cloudauth.SyncResult{}, nil)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.Push(context.Background(), "http://x", "job", "c"))
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.RecordSync(&cloudauth.SyncResult{Applied: true}, nil)
	require.NoError(t, m.Push(context.Background(), srv.URL, "eks-auth-sync", "production"))

	assert.Equal(t, "/metrics/job/eks-auth-sync/cluster/production", path)
	assert.NotEmpty(t, body)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "eks-auth-sync", "production")
	require.Error(t, err)
	assert.True(t, cloudauth.IsCategory(err, cloudauth.ErrCategoryNetwork))
	assert.True(t, strings.Contains(err.Error(), "pushgateway"))
}
