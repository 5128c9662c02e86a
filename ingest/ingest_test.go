package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aecintel/meropipe/blob"
	"github.com/aecintel/meropipe/extractor"
	"github.com/aecintel/meropipe/ner"
	"github.com/aecintel/meropipe/observability"
	"github.com/aecintel/meropipe/retry"
	"github.com/aecintel/meropipe/store"
	"github.com/aecintel/meropipe/textembed"
	_ "modernc.org/sqlite"
)

// fastRetry keeps test retry loops quick.
var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

type fakeSource struct {
	files   map[string][]byte
	listErr error
}

func (f *fakeSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, ref)
	}
	return data, nil
}

func (f *fakeSource) List(_ context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var refs []string
	for ref := range f.files {
		if strings.HasPrefix(ref, prefix) {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

type fakeRecognizer struct {
	entities []ner.Entity
	errs     []error // consumed per call; nil entry means success
	calls    int
	enabled  bool
}

func (f *fakeRecognizer) Entities(context.Context, string) ([]ner.Entity, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.entities, nil
}

func (f *fakeRecognizer) Enabled() bool { return f.enabled }

type fakeEmbedder struct {
	vec       []float32
	failCalls int // first failCalls calls fail with a throttle signal
	calls     int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failCalls {
		return nil, &textembed.StatusError{Code: 429, Body: "rate limit"}
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]*store.Document
	errs    []error // consumed per call
	upserts int
}

func (f *fakeStore) Upsert(_ context.Context, doc *store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	if f.docs == nil {
		f.docs = make(map[string]*store.Document)
	}
	f.docs[doc.ID] = doc
	return nil
}

func newTestService(t *testing.T, src *fakeSource, rec *fakeRecognizer, emb *fakeEmbedder, st *fakeStore) *Service {
	t.Helper()
	svc, err := New(Config{EnrichRetry: fastRetry, PersistRetry: fastRetry},
		src, extractor.New(extractor.Config{}), rec, emb, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestProcessFileEndToEnd(t *testing.T) {
	// 25000 characters chunk into 10000 + 10000 + 5000.
	text := strings.Repeat("a", 25000)
	src := &fakeSource{files: map[string][]byte{
		"data/tenders/2026/report.txt": []byte(text),
	}}
	st := &fakeStore{}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{0.1, 0.2}}, st)

	eventTime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	res, err := svc.ProcessFile(context.Background(), "data/tenders/2026/report.txt", eventTime)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalChunks != 3 || res.SuccessfulChunks != 3 || res.FailedChunks != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Degraded {
		t.Error("unexpected degraded result")
	}
	if res.Category != "tenders" {
		t.Errorf("category = %q", res.Category)
	}

	if len(st.docs) != 3 {
		t.Fatalf("persisted %d docs, want 3", len(st.docs))
	}
	wantLens := []int{10000, 10000, 5000}
	for i, wantLen := range wantLens {
		doc := st.docs[fmt.Sprintf("report.txt_%d", i)]
		if doc == nil {
			t.Fatalf("missing doc for chunk %d", i)
		}
		if doc.ChunkLength != wantLen {
			t.Errorf("chunk %d length = %d, want %d", i, doc.ChunkLength, wantLen)
		}
		if doc.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, doc.ChunkIndex)
		}
		// Disabled recognizer: entities present and empty, embedding populated.
		if doc.Entities == nil || len(doc.Entities) != 0 {
			t.Errorf("chunk %d entities = %v", i, doc.Entities)
		}
		if len(doc.Embedding) != 2 {
			t.Errorf("chunk %d embedding = %v", i, doc.Embedding)
		}
		if !doc.EventTimestamp.Equal(eventTime) {
			t.Errorf("chunk %d event timestamp = %v", i, doc.EventTimestamp)
		}
		if doc.SourceFilename != "report.txt" {
			t.Errorf("chunk %d source filename = %q", i, doc.SourceFilename)
		}
	}
}

func TestProcessFileDegradedSuccess(t *testing.T) {
	// 35000 characters chunk into 4 chunks. The embedder throttles the
	// first three chunks through their whole retry budget and lets the
	// fourth succeed: 3 of 4 failed is a degraded success, not an error.
	text := strings.Repeat("b", 35000)
	src := &fakeSource{files: map[string][]byte{"tenders/big.txt": []byte(text)}}
	emb := &fakeEmbedder{vec: []float32{1}, failCalls: 3 * fastRetry.MaxAttempts}
	st := &fakeStore{}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, emb, st)

	res, err := svc.ProcessFile(context.Background(), "tenders/big.txt", time.Time{})
	if err != nil {
		t.Fatalf("degraded success must not return an error: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded result")
	}
	if res.SuccessfulChunks != 1 || res.FailedChunks != 3 {
		t.Errorf("result = %+v", res)
	}
	if len(st.docs) != 1 {
		t.Errorf("persisted %d docs, want 1", len(st.docs))
	}
}

func TestProcessFileAllChunksFailed(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{"tenders/f.txt": []byte("hello world")}}
	st := &fakeStore{errs: []error{errors.New("store down"), errors.New("store down"), errors.New("store down")}}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, st)

	res, err := svc.ProcessFile(context.Background(), "tenders/f.txt", time.Time{})
	if !errors.Is(err, ErrAllChunksFailed) {
		t.Fatalf("err = %v, want ErrAllChunksFailed", err)
	}
	if res == nil || res.FailedChunks != res.TotalChunks {
		t.Errorf("result = %+v", res)
	}
	// Non-throttle store errors are not retried.
	if st.upserts != 1 {
		t.Errorf("upserts = %d, want 1", st.upserts)
	}
}

func TestAllChunksFailedEventKeepsChunkCounts(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	events, err := observability.NewEventLog(db, 16, nil)
	if err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{files: map[string][]byte{"tenders/f.txt": []byte("hello world")}}
	st := &fakeStore{errs: []error{errors.New("store down")}}
	svc, err := New(Config{EnrichRetry: fastRetry, PersistRetry: fastRetry},
		src, extractor.New(extractor.Config{}), &fakeRecognizer{enabled: false},
		&fakeEmbedder{vec: []float32{1}}, st, events)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ProcessFile(context.Background(), "tenders/f.txt", time.Time{}); !errors.Is(err, ErrAllChunksFailed) {
		t.Fatalf("err = %v, want ErrAllChunksFailed", err)
	}
	if err := events.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := observability.NewEventLog(db, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	failed, err := reader.Recent(context.Background(), observability.EventFileFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failure events, want 1", len(failed))
	}
	// The failure event must carry the real chunk totals, not zeroes.
	if failed[0].Chunks != 1 || failed[0].Failed != 1 {
		t.Errorf("event chunks = %d failed = %d, want 1 and 1", failed[0].Chunks, failed[0].Failed)
	}
	if failed[0].Error == "" {
		t.Error("failure event missing error message")
	}
}

func TestProcessFileFetchFailure(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})
	_, err := svc.ProcessFile(context.Background(), "missing.txt", time.Time{})
	if !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessChunkBlank(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})
	err := svc.processChunk(context.Background(), "f.txt", "cat", "   \t  ", 0, time.Now())
	if !errors.Is(err, errBlankChunk) {
		t.Fatalf("err = %v, want errBlankChunk", err)
	}
}

func TestPersistRetriesOnThrottle(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{"tenders/f.txt": []byte("hello world")}}
	st := &fakeStore{errs: []error{&store.StatusError{Code: 429, Body: "Request rate is large"}}}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, st)

	res, err := svc.ProcessFile(context.Background(), "tenders/f.txt", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessfulChunks != 1 {
		t.Errorf("result = %+v", res)
	}
	if st.upserts != 2 {
		t.Errorf("upserts = %d, want 2", st.upserts)
	}
}

func TestEntitiesAttachedWhenRecognizerEnabled(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{"permits/p.txt": []byte("city hall permit")}}
	rec := &fakeRecognizer{
		enabled:  true,
		entities: []ner.Entity{{Text: "city hall", Label: "Location"}},
	}
	st := &fakeStore{}
	svc := newTestService(t, src, rec, &fakeEmbedder{vec: []float32{1}}, st)

	if _, err := svc.ProcessFile(context.Background(), "permits/p.txt", time.Time{}); err != nil {
		t.Fatal(err)
	}
	doc := st.docs["p.txt_0"]
	if doc == nil {
		t.Fatal("document not persisted")
	}
	if len(doc.Entities) != 1 || doc.Entities[0].Label != "Location" {
		t.Errorf("entities = %+v", doc.Entities)
	}
}

func TestNERThrottleRetriedThenSucceeds(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{"f.txt": []byte("text")}}
	rec := &fakeRecognizer{
		enabled: true,
		errs:    []error{&ner.StatusError{Code: 429, Body: "throttled"}, nil},
	}
	svc := newTestService(t, src, rec, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})

	res, err := svc.ProcessFile(context.Background(), "f.txt", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessfulChunks != 1 {
		t.Errorf("result = %+v", res)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}

func TestNERNonTransientFailsChunkWithoutRetry(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{"f.txt": []byte("text")}}
	rec := &fakeRecognizer{
		enabled: true,
		errs:    []error{&ner.StatusError{Code: 400, Body: "bad request"}},
	}
	st := &fakeStore{}
	svc := newTestService(t, src, rec, &fakeEmbedder{vec: []float32{1}}, st)

	_, err := svc.ProcessFile(context.Background(), "f.txt", time.Time{})
	if !errors.Is(err, ErrAllChunksFailed) {
		t.Fatalf("err = %v", err)
	}
	if rec.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", rec.calls)
	}
	if len(st.docs) != 0 {
		t.Error("partial result persisted")
	}
}

func TestInputCapsApplied(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{
		"long.txt":  []byte(strings.Repeat("x", 9000)),
		"short.txt": []byte(strings.Repeat("y", 700)),
	}}

	var nerLen, embedLen int
	rec := &capturingRecognizer{onText: func(s string) { nerLen = len([]rune(s)) }}
	emb := &capturingEmbedder{onText: func(s string) { embedLen = len([]rune(s)) }}

	svc, err := New(Config{EnrichRetry: fastRetry, PersistRetry: fastRetry},
		src, extractor.New(extractor.Config{}), rec, emb, &fakeStore{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ProcessFile(context.Background(), "long.txt", time.Time{}); err != nil {
		t.Fatal(err)
	}
	if nerLen != DefaultNERInputCap {
		t.Errorf("ner input = %d runes, want %d", nerLen, DefaultNERInputCap)
	}
	if embedLen != DefaultEmbedInputCap {
		t.Errorf("embed input = %d runes, want %d", embedLen, DefaultEmbedInputCap)
	}

	if _, err := svc.ProcessFile(context.Background(), "short.txt", time.Time{}); err != nil {
		t.Fatal(err)
	}
	if nerLen != 700 {
		t.Errorf("ner input = %d runes, want 700 untruncated", nerLen)
	}
	if embedLen != 700 {
		t.Errorf("embed input = %d runes, want 700 untruncated", embedLen)
	}
}

type capturingRecognizer struct{ onText func(string) }

func (c *capturingRecognizer) Entities(_ context.Context, text string) ([]ner.Entity, error) {
	c.onText(text)
	return nil, nil
}
func (c *capturingRecognizer) Enabled() bool { return true }

type capturingEmbedder struct{ onText func(string) }

func (c *capturingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.onText(text)
	return []float32{1}, nil
}
func (c *capturingEmbedder) Model() string { return "fake-model" }

func TestReplay(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{
		"tenders/a.txt": []byte("alpha"),
		"tenders/b.txt": []byte("beta"),
		"tenders/c.xyz": []byte("unsupported"),
	}}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})

	sum, err := svc.Replay(context.Background(), "tenders/")
	if err != nil {
		t.Fatal(err)
	}
	if sum.RunID == "" {
		t.Error("empty run id")
	}
	if sum.Processed != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Errors) != 1 || !strings.Contains(sum.Errors[0], "tenders/c.xyz") {
		t.Errorf("errors = %v", sum.Errors)
	}
}

func TestReplayErrorCap(t *testing.T) {
	files := make(map[string][]byte)
	for i := 0; i < 15; i++ {
		files[fmt.Sprintf("bad/f%02d.xyz", i)] = []byte("x")
	}
	svc := newTestService(t, &fakeSource{files: files}, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})

	sum, err := svc.Replay(context.Background(), "bad/")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 15 {
		t.Errorf("failed = %d", sum.Failed)
	}
	if len(sum.Errors) != DefaultReplayErrorCap {
		t.Errorf("errors carried = %d, want %d", len(sum.Errors), DefaultReplayErrorCap)
	}
}

func TestReplayListFailure(t *testing.T) {
	src := &fakeSource{listErr: blob.ErrListUnsupported}
	svc := newTestService(t, src, &fakeRecognizer{enabled: false}, &fakeEmbedder{vec: []float32{1}}, &fakeStore{})
	if _, err := svc.Replay(context.Background(), "x/"); !errors.Is(err, blob.ErrListUnsupported) {
		t.Fatalf("err = %v", err)
	}
}
