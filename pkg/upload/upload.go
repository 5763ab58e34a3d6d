/*
	Copyright 2026 OpenVelo
*/

// Package upload pushes finalized activity files to the configured
// backend. Uploads run in the background with exponential backoff; the
// local file is removed only after the backend acknowledged it.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/openvelo/ride-engine/log"
)

// State of an upload job.
type State int

const (
	StateQueued State = iota
	StateUploading
	StateRetrying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateUploading:
		return "uploading"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Job describes one upload and its progress.
type Job struct {
	ID       uuid.UUID
	Path     string
	State    State
	Attempts int
	Sent     int64
	Size     int64
	Err      error
}

var ErrCoordinatorClosed = errors.New("upload: coordinator closed")

// Coordinator manages the upload queue. Safe for concurrent use.
type Coordinator struct {
	endpoint   string
	client     *http.Client
	logger     *log.Logger
	maxRetries uint64
	backoffFn  func() backoff.BackOff
	keepFiles  bool

	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
}

type Option func(*Coordinator)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(u *Coordinator) { u.client = c }
}

// WithMaxRetries caps the retry attempts per job (default 5).
func WithMaxRetries(n uint64) Option {
	return func(u *Coordinator) { u.maxRetries = n }
}

// WithBackOff replaces the retry schedule, mainly for tests.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(u *Coordinator) { u.backoffFn = fn }
}

// WithKeepFiles disables local file removal after successful upload.
func WithKeepFiles() Option {
	return func(u *Coordinator) { u.keepFiles = true }
}

func WithLogger(l *log.Logger) Option {
	return func(u *Coordinator) { u.logger = l }
}

func NewCoordinator(endpoint string, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Coordinator{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     log.GetLogger("upload"),
		maxRetries: 5,
		jobs:       make(map[uuid.UUID]*Job),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.backoffFn == nil {
		ret.backoffFn = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 2 * time.Minute
			return b
		}
	}
	return ret
}

// Enqueue registers path for upload and starts working on it in the
// background. Returns the job id for progress queries.
func (u *Coordinator) Enqueue(path string) (uuid.UUID, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stat upload candidate: %w", err)
	}
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return uuid.Nil, ErrCoordinatorClosed
	}
	job := &Job{ID: uuid.New(), Path: path, State: StateQueued, Size: fi.Size()}
	u.jobs[job.ID] = job
	u.wg.Add(1)
	u.mu.Unlock()

	go u.run(job)
	return job.ID, nil
}

// Job returns a copy of the job's current state.
func (u *Coordinator) Job(id uuid.UUID) (Job, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	job, ok := u.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns a copy of all known jobs.
func (u *Coordinator) Jobs() []Job {
	u.mu.Lock()
	defer u.mu.Unlock()
	ret := make([]Job, 0, len(u.jobs))
	for _, job := range u.jobs {
		ret = append(ret, *job)
	}
	return ret
}

// Wait blocks until all enqueued jobs reached a terminal state.
func (u *Coordinator) Wait() {
	u.wg.Wait()
}

// Close stops accepting jobs and aborts in-flight uploads.
func (u *Coordinator) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	u.cancel()
	u.wg.Wait()
}

func (u *Coordinator) run(job *Job) {
	defer u.wg.Done()

	var sent atomic.Int64
	op := func() error {
		u.mu.Lock()
		job.Attempts++
		job.State = StateUploading
		job.Sent = 0
		u.mu.Unlock()
		sent.Store(0)

		err := u.post(job.Path, &sent)
		u.mu.Lock()
		job.Sent = sent.Load()
		if err != nil {
			job.State = StateRetrying
			job.Err = err
		}
		u.mu.Unlock()
		if err != nil {
			u.logger.Warn("upload attempt failed",
				log.String("file", job.Path),
				log.Int("attempt", job.Attempts),
				log.ErrorField(err))
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(u.backoffFn(), u.maxRetries), u.ctx)
	if err := backoff.Retry(op, b); err != nil {
		u.mu.Lock()
		job.State = StateFailed
		job.Err = err
		u.mu.Unlock()
		u.logger.Error("upload failed permanently",
			log.String("file", job.Path), log.ErrorField(err))
		return
	}

	u.mu.Lock()
	job.State = StateDone
	job.Err = nil
	u.mu.Unlock()
	u.logger.Info("upload complete",
		log.String("file", job.Path), log.Int("attempts", job.Attempts))

	if !u.keepFiles {
		if err := os.Remove(job.Path); err != nil {
			u.logger.Warn("removing uploaded file failed",
				log.String("file", job.Path), log.ErrorField(err))
		}
	}
}

func (u *Coordinator) post(path string, sent *atomic.Int64) error {
	// re-read per attempt so a partial send never corrupts the stream
	data, err := os.ReadFile(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("reading upload file: %w", err))
	}
	body := &countingReader{r: bytes.NewReader(data), n: sent}

	req, err := http.NewRequestWithContext(u.ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Activity-Filename", filepath.Base(path))
	req.ContentLength = int64(len(data))

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests:
		// client errors won't heal with retries
		return backoff.Permanent(fmt.Errorf("upload rejected: %s", resp.Status))
	default:
		return fmt.Errorf("upload failed: %s", resp.Status)
	}
}

// countingReader tracks bytes handed to the transport for progress
// reporting.
type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
