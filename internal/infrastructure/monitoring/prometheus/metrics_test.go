package prometheus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/domain/generation"
	apperrors "github.com/turtacn/hmd/pkg/errors"
)

func newTestGenerationMetrics(t *testing.T) (*GenerationMetrics, MetricsCollector) {
	c := newTestCollector(t)
	return NewGenerationMetrics(c), c
}

func TestNewGenerationMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestGenerationMetrics(t)
	require.NotNil(t, m)

	assert.NotNil(t, m.CandidatesTotal)
	assert.NotNil(t, m.AcceptedTotal)
	assert.NotNil(t, m.RejectedTotal)
	assert.NotNil(t, m.WorkingSet)
	assert.NotNil(t, m.RunsTotal)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.StructuresPerRun)
}

func TestGenerationMetrics_Recorder(t *testing.T) {
	m, c := newTestGenerationMetrics(t)

	m.CandidatesGenerated(4)
	m.CandidatesGenerated(3)
	m.StructureAccepted()
	m.StructureRejected(generation.RejectDuplicate)
	m.StructureRejected(generation.RejectDuplicate)
	m.StructureRejected(generation.RejectUnsaturated)
	m.WorkingSetSize(6)
	m.WorkingSetSize(9)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_candidates_total 7")
	assert.Contains(t, output, "test_unit_structures_accepted_total 1")
	assert.Contains(t, output, "test_unit_working_set_size 9")

	expected := `
# HELP test_unit_structures_rejected_total Saturated candidates that did not pass acceptance
# TYPE test_unit_structures_rejected_total counter
test_unit_structures_rejected_total{reason="duplicate"} 2
test_unit_structures_rejected_total{reason="unsaturated"} 1
`
	err := testutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected),
		"test_unit_structures_rejected_total")
	assert.NoError(t, err)
}

func TestGenerationMetrics_ConcurrentRecording(t *testing.T) {
	m, c := newTestGenerationMetrics(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StructureAccepted()
		}()
	}
	wg.Wait()
	assert.Contains(t, scrapeMetrics(t, c), "test_unit_structures_accepted_total 20")
}

func TestRecordRun_SuccessAndFailure(t *testing.T) {
	m, c := newTestGenerationMetrics(t)

	m.RecordRun(1500*time.Millisecond, 12, nil)
	m.RecordRun(time.Second, 0, errors.New("sink closed"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_runs_total{status="success"} 1`)
	assert.Contains(t, output, `test_unit_runs_total{status="failed"} 1`)
	assert.Contains(t, output, "test_unit_run_duration_seconds_count 2")
	assert.Contains(t, output, "test_unit_run_duration_seconds_sum 2.5")
	assert.Contains(t, output, "test_unit_run_structures 0")
}

func TestWriteTextfile(t *testing.T) {
	m, _ := newTestGenerationMetrics(t)
	m.StructureAccepted()

	path := filepath.Join(t.TempDir(), "hmd.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_unit_structures_accepted_total 1")
}

func TestWriteTextfile_BadDirectory(t *testing.T) {
	m, _ := newTestGenerationMetrics(t)
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "hmd.prom"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMetricsError))
}

func TestPush_SendsToGateway(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, _ := newTestGenerationMetrics(t)
	m.CandidatesGenerated(3)
	require.NoError(t, m.Push(context.Background(), srv.URL, "hmd", "run-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/hmd/run_id/run-1", path)
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, _ := newTestGenerationMetrics(t)
	err := m.Push(context.Background(), srv.URL, "hmd", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMetricsError))
}

func TestGenerationMetrics_Handler(t *testing.T) {
	m, _ := newTestGenerationMetrics(t)
	m.CandidatesGenerated(2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_unit_candidates_total 2")
}
