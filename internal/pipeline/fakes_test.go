package pipeline

import (
	"context"
	"errors"
	"image"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trunov/webpbucket/internal/entities"
)

// memStore is an in-memory ObjectStore that records every call.
type memStore struct {
	mu          sync.Mutex
	keys        []string
	objects     map[string][]byte
	uploads     map[string][]byte
	contentType map[string]string
	uploadCount map[string]int
	downloads   map[string]int

	failDownload map[string]error
	failUpload   map[string]error
	listErrAfter int // yield a listing error after this many keys; <0 disables

	delay   time.Duration
	release chan struct{} // when set, downloads block until it is closed

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newMemStore(keys ...string) *memStore {
	s := &memStore{
		keys:         keys,
		objects:      map[string][]byte{},
		uploads:      map[string][]byte{},
		contentType:  map[string]string{},
		uploadCount:  map[string]int{},
		downloads:    map[string]int{},
		failDownload: map[string]error{},
		failUpload:   map[string]error{},
		listErrAfter: -1,
	}
	for _, k := range keys {
		s.objects[k] = []byte("src:" + k)
	}
	return s
}

func (s *memStore) List(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, k := range s.keys {
			if s.listErrAfter >= 0 && i == s.listErrAfter {
				yield("", errors.New("connection reset"))
				return
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (s *memStore) Download(ctx context.Context, key string) ([]byte, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[key]++
	if err := s.failDownload[key]; err != nil {
		return nil, err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (s *memStore) Upload(_ context.Context, key, contentType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpload[key]; err != nil {
		return err
	}
	s.uploads[key] = payload
	s.contentType[key] = contentType
	s.uploadCount[key]++
	return nil
}

func (s *memStore) totalDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.downloads {
		n += c
	}
	return n
}

// fakeConverter fails to decode payloads listed in corrupt and to encode keys
// in failEncode. Keys in panicDecode and panicEncode make it panic instead.
type fakeConverter struct {
	corrupt     map[string]bool
	failEncode  map[string]bool
	panicDecode map[string]bool
	panicEncode map[string]bool
}

func (c fakeConverter) Decode(data []byte, task entities.Task) (image.Image, error) {
	if c.panicDecode[task.SourceKey] {
		panic("decoder blew up")
	}
	if c.corrupt[task.SourceKey] {
		return nil, errors.New("unknown format")
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (c fakeConverter) Encode(_ image.Image, task entities.Task) ([]byte, error) {
	if c.panicEncode[task.SourceKey] {
		var img *image.RGBA
		_ = img.Bounds() // nil pointer dereference
	}
	if c.failEncode[task.SourceKey] {
		return nil, errors.New("encoder rejected image")
	}
	return []byte("webp:" + task.SourceKey + ":" + task.Kind.String()), nil
}

type report struct {
	err  error
	tags map[string]string
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *recordingReporter) Report(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{err: err, tags: tags})
}

type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
	batches  atomic.Int64

	mu     sync.Mutex
	stages []string
}

func (o *countingObserver) ItemStarted(string) { o.started.Add(1) }

func (o *countingObserver) ItemFinished(_ string, stage string, _ time.Duration) {
	o.finished.Add(1)
	if stage != "" {
		o.failed.Add(1)
	}
	o.mu.Lock()
	o.stages = append(o.stages, stage)
	o.mu.Unlock()
}

func (o *countingObserver) BatchFinished(string, int64, int64) { o.batches.Add(1) }
