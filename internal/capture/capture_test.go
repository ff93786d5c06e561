package capture

import (
	"context"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/config"
	"secondbrain/internal/kv"
	"secondbrain/internal/pipeline"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/taskrunner"
)

func newTestHandler(t *testing.T) (*Handler, *kv.Store) {
	sql, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sql.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store, err := kv.Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := taskrunner.New(store, config.TaskRunnerConfig{
		SoftTimeLimit: time.Minute, HardTimeLimit: 2 * time.Minute,
		BookSoftTimeLimit: time.Minute, BookHardTimeLimit: 2 * time.Minute,
		RetryInitialBackoff: time.Millisecond, RetryMaxAttempts: 1, WorkersPerQueue: 1,
	})

	registry := pipeline.NewRegistry(&pipeline.TextPipeline{})
	limits := config.LimitsConfig{MaxFileSizeBytes: 1 << 20}

	return New(sql, registry, runner, limits, t.TempDir()), store
}

func TestCaptureTextSuccessEnqueuesDefaultPriority(t *testing.T) {
	h, store := newTestHandler(t)
	e := NewServer(h)

	form := url.Values{"content": {"an idea worth keeping"}, "tags": {"go, ideas"}}
	req := httptest.NewRequest("POST", "/capture/text", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"captured"`)

	depth, err := store.QueueDepth(context.Background(), kv.PriorityDefault)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestCaptureTextRequiresContent(t *testing.T) {
	h, _ := newTestHandler(t)
	e := NewServer(h)

	req := httptest.NewRequest("POST", "/capture/text", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestCaptureTextDedupesSecondSubmission(t *testing.T) {
	h, _ := newTestHandler(t)
	e := NewServer(h)

	form := url.Values{"content": {"duplicate me"}}
	body := form.Encode()

	for i, wantDeduped := range []bool{false, true} {
		req := httptest.NewRequest("POST", "/capture/text", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)
		require.Equal(t, 200, rec.Code, "submission %d", i)
		if wantDeduped {
			require.Contains(t, rec.Body.String(), `"status":"deduped"`)
		} else {
			require.Contains(t, rec.Body.String(), `"status":"captured"`)
		}
	}
}

func TestCaptureURLRejectsGithubWithoutCodePipeline(t *testing.T) {
	h, store := newTestHandler(t)
	// github URLs resolve to InputCode, which no registered pipeline
	// supports in this test registry: the request is rejected with 422
	// and nothing is enqueued on the low-priority queue.
	e := NewServer(h)

	form := url.Values{"url": {"https://github.com/example/repo"}}
	req := httptest.NewRequest("POST", "/capture/url", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, 422, rec.Code)
	depth, err := store.QueueDepth(context.Background(), kv.PriorityLow)
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)
}

func TestCaptureURLRequiresURL(t *testing.T) {
	h, _ := newTestHandler(t)
	e := NewServer(h)

	req := httptest.NewRequest("POST", "/capture/url", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestCaptureBookRequiresAtLeastOnePage(t *testing.T) {
	h, _ := newTestHandler(t)
	e := NewServer(h)

	body := &strings.Builder{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/capture/book", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}
