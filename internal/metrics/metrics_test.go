package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.ObserveCycle(ResultOK, 2*time.Second)
	r.ObserveCycle(ResultSkipped, 0)
	r.ObserveCycle(ResultFailed, 0)
	r.ObserveCycle(ResultFailed, 0)
	r.ObserveRows(10, 2)
	r.ObserveMessage("CE", nil)
	r.ObserveMessage("PE", errors.New("down"))
	r.ObserveMigration()
	r.ObserveSaveFailure()
	r.ObserveSpot(24512.35)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cycles.WithLabelValues(ResultFailed)))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.rows.WithLabelValues("computed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rows.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messages.WithLabelValues("CE", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messages.WithLabelValues("PE", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeMigrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.saveFailures))
	assert.Equal(t, 24512.35, testutil.ToFloat64(r.spot))
	assert.Positive(t, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(r.cycleDuration))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveCycle(ResultOK, time.Second)
	r.ObserveRows(1, 1)
	r.ObserveMessage("CE", nil)
	r.ObserveMigration()
	r.ObserveSaveFailure()
	r.ObserveSpot(1)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.Push(context.Background(), "http://127.0.0.1:1", "job"))
}

func TestRecorder_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveCycle(ResultOK, time.Second)
	require.NoError(t, r.Push(context.Background(), srv.URL, "oidelta"))

	assert.Equal(t, "/metrics/job/oidelta", gotPath)
	assert.Contains(t, gotBody, "oidelta_cycles_total")
	assert.NoError(t, r.Push(context.Background(), "", "oidelta"), "empty gateway disables push")
}

func TestRecorder_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "oidelta")
	assert.Error(t, err)
}
