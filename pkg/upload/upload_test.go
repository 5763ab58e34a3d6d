//nolint:thelper,funlen // ok for tests
package upload

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func writeActivity(t *testing.T, dir string) string {
	path := filepath.Join(dir, "ride.fit")
	require.NoError(t, os.WriteFile(path, []byte("activity payload"), 0o644))
	return path
}

func TestCoordinator_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeActivity(t, dir)

	c := NewCoordinator(srv.URL,
		WithBackOff(fastBackOff), WithMaxRetries(5))
	defer c.Close()

	id, err := c.Enqueue(path)
	require.NoError(t, err)
	c.Wait()

	job, ok := c.Job(id)
	require.True(t, ok)
	assert.Equal(t, StateDone, job.State)
	assert.Equal(t, 3, job.Attempts)
	assert.NoError(t, job.Err)
	assert.Equal(t, []byte("activity payload"), received)

	// file removed only after the backend acknowledged
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCoordinator_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeActivity(t, dir)

	c := NewCoordinator(srv.URL,
		WithBackOff(fastBackOff), WithMaxRetries(2))
	defer c.Close()

	id, err := c.Enqueue(path)
	require.NoError(t, err)
	c.Wait()

	job, _ := c.Job(id)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, 3, job.Attempts) // initial try + 2 retries
	assert.Error(t, job.Err)

	// failed uploads never delete the local file
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestCoordinator_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeActivity(t, dir)

	c := NewCoordinator(srv.URL,
		WithBackOff(fastBackOff), WithMaxRetries(5))
	defer c.Close()

	id, err := c.Enqueue(path)
	require.NoError(t, err)
	c.Wait()

	job, _ := c.Job(id)
	assert.Equal(t, StateFailed, job.State)
	// rejected payloads are not retried
	assert.Equal(t, 1, job.Attempts)
}

func TestCoordinator_KeepFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeActivity(t, dir)

	c := NewCoordinator(srv.URL, WithKeepFiles())
	defer c.Close()

	_, err := c.Enqueue(path)
	require.NoError(t, err)
	c.Wait()

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestCoordinator_EnqueueMissingFile(t *testing.T) {
	c := NewCoordinator("http://localhost:1")
	defer c.Close()
	_, err := c.Enqueue(filepath.Join(t.TempDir(), "nope.fit"))
	assert.Error(t, err)
}

func TestCoordinator_RejectsAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := writeActivity(t, dir)

	c := NewCoordinator("http://localhost:1")
	c.Close()
	_, err := c.Enqueue(path)
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "queued", StateQueued.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
