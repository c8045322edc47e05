package usage_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailWahib/graveldoc/internal/usage"
)

func TestTracker_Snapshot(t *testing.T) {
	tr := usage.NewTracker()

	tr.BytesWritten("users", 63)
	tr.DocumentWritten("users")
	tr.BytesRead("users", 63)
	tr.BytesRead("users", 63)
	tr.BytesRead("posts", 10)

	s := tr.Snapshot()
	assert.Equal(t, []string{"posts", "users"}, s.Tables())
	assert.Equal(t, usage.TableUsage{BytesRead: 126, BytesWritten: 63, DocumentsWritten: 1}, s["users"])
	assert.Equal(t, usage.TableUsage{BytesRead: 10}, s["posts"])

	// Snapshots are copies.
	tr.BytesRead("posts", 5)
	assert.Equal(t, uint64(10), s["posts"].BytesRead)
}

func TestTracker_Counters(t *testing.T) {
	tr := usage.NewTracker()
	tr.BytesWritten("users", 40)
	tr.BytesWritten("users", 2)
	tr.DocumentWritten("users")

	expected := `
# HELP graveldoc_usage_bytes_written_total Document bytes written, by table.
# TYPE graveldoc_usage_bytes_written_total counter
graveldoc_usage_bytes_written_total{table="users"} 42
`
	require.NoError(t, testutil.GatherAndCompare(tr.Registry(), strings.NewReader(expected),
		"graveldoc_usage_bytes_written_total"))
	count, err := testutil.GatherAndCount(tr.Registry())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := usage.NewTracker()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				tr.BytesRead("t", 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(800), tr.Snapshot()["t"].BytesRead)
}

func TestTracker_Handler(t *testing.T) {
	tr := usage.NewTracker()
	tr.BytesRead("users", 7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	tr.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `graveldoc_usage_bytes_read_total{table="users"} 7`)
}
