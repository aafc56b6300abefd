package searchstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeEngine is a minimal in-memory stand-in for the engine's REST surface:
// index CRUD, settings, document uploads and task polling.
type fakeEngine struct {
	mu  sync.Mutex
	srv *httptest.Server

	indexes  map[string]bool
	dims     map[string]int
	settings map[string]indexSettings

	uploads       map[string][][]map[string]any // index → PUT batches
	partials      map[string][]map[string]any   // index → POST rows
	docDeletes    []string                      // document delete paths
	filterDeletes map[string][]string           // index → filter strings

	tasks        map[int64]task
	taskSeq      int64
	pendingPolls int // "processing" replies before success
	failNext     *taskError

	authHeaders []string
	deleteCount int
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{
		indexes:       make(map[string]bool),
		dims:          make(map[string]int),
		settings:      make(map[string]indexSettings),
		uploads:       make(map[string][][]map[string]any),
		partials:      make(map[string][]map[string]any),
		filterDeletes: make(map[string][]string),
		tasks:         make(map[int64]task),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// client builds a Client aimed at this engine with fast polling.
func (f *fakeEngine) client(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.Host = f.srv.URL
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 4
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// enqueue registers a terminal task and returns its uid.
func (f *fakeEngine) enqueue(failWith *taskError) int64 {
	f.taskSeq++
	uid := f.taskSeq
	status := "succeeded"
	if f.failNext != nil {
		failWith = f.failNext
		f.failNext = nil
	}
	if failWith != nil {
		status = "failed"
	}
	f.tasks[uid] = task{UID: uid, Status: status, Error: failWith}
	return uid
}

func (f *fakeEngine) writeTask(w http.ResponseWriter, uid int64) {
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(taskRef{TaskUID: uid})
}

func (f *fakeEngine) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/tasks/"):
		uid, _ := strconv.ParseInt(strings.TrimPrefix(path, "/tasks/"), 10, 64)
		t := f.tasks[uid]
		if f.pendingPolls > 0 && t.Status == "succeeded" {
			f.pendingPolls--
			t = task{UID: uid, Status: "processing"}
		}
		_ = json.NewEncoder(w).Encode(t)

	case r.Method == http.MethodPost && path == "/indexes":
		var req createIndexRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var failWith *taskError
		if f.indexes[req.UID] {
			failWith = &taskError{Message: "index already exists", Code: "index_already_exists"}
		} else {
			f.indexes[req.UID] = true
		}
		f.writeTask(w, f.enqueue(failWith))

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/settings/embedders"):
		uid := strings.TrimSuffix(strings.TrimPrefix(path, "/indexes/"), "/settings/embedders")
		embedders := map[string]embedderSpec{}
		if d := f.dims[uid]; d != 0 {
			embedders[EmbedderName] = embedderSpec{Source: "userProvided", Dimensions: d}
		}
		_ = json.NewEncoder(w).Encode(embedders)

	case r.Method == http.MethodPatch && strings.HasSuffix(path, "/settings"):
		uid := strings.TrimSuffix(strings.TrimPrefix(path, "/indexes/"), "/settings")
		var settings indexSettings
		_ = json.NewDecoder(r.Body).Decode(&settings)
		f.settings[uid] = settings
		if spec, ok := settings.Embedders[EmbedderName]; ok {
			f.dims[uid] = spec.Dimensions
		}
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/documents/delete"):
		uid := strings.TrimSuffix(strings.TrimPrefix(path, "/indexes/"), "/documents/delete")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.filterDeletes[uid] = append(f.filterDeletes[uid], body["filter"])
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/documents"):
		uid := strings.TrimSuffix(strings.TrimPrefix(path, "/indexes/"), "/documents")
		var rows []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rows)
		f.uploads[uid] = append(f.uploads[uid], rows)
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/documents"):
		uid := strings.TrimSuffix(strings.TrimPrefix(path, "/indexes/"), "/documents")
		var rows []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rows)
		f.partials[uid] = append(f.partials[uid], rows...)
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodDelete && strings.Contains(path, "/documents/"):
		f.docDeletes = append(f.docDeletes, path)
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/indexes/"):
		uid := strings.TrimPrefix(path, "/indexes/")
		delete(f.indexes, uid)
		delete(f.dims, uid)
		f.deleteCount++
		f.writeTask(w, f.enqueue(nil))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/indexes/"):
		uid := strings.TrimPrefix(path, "/indexes/")
		if f.indexes[uid] {
			_ = json.NewEncoder(w).Encode(map[string]string{"uid": uid, "primaryKey": "id"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "Index `" + uid + "` not found.",
			"code":    "index_not_found",
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// allRows flattens every uploaded batch for an index.
func (f *fakeEngine) allRows(index string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, batch := range f.uploads[index] {
		out = append(out, batch...)
	}
	return out
}
