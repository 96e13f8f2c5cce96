package staffchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// directoryServer serves the two roster endpoints with swappable bodies.
type directoryServer struct {
	*httptest.Server
	employees atomic.Value // string
	channels  atomic.Value // string
	fail      atomic.Bool
}

func newDirectoryServer(t *testing.T) *directoryServer {
	t.Helper()
	ds := &directoryServer{}
	ds.employees.Store(`[]`)
	ds.channels.Store(`[]`)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/directory/employees", func(w http.ResponseWriter, r *http.Request) {
		if ds.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(ds.employees.Load().(string)))
	})
	mux.HandleFunc("/api/directory/channels", func(w http.ResponseWriter, r *http.Request) {
		if ds.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(ds.channels.Load().(string)))
	})

	ds.Server = httptest.NewServer(mux)
	t.Cleanup(ds.Close)
	return ds
}

func TestDirectoryLoadShapes(t *testing.T) {
	ds := newDirectoryServer(t)
	client := NewClient(ds.URL)
	cache := NewDirectoryCache(client)
	ctx := context.Background()

	t.Run("bare array", func(t *testing.T) {
		ds.employees.Store(`[{"_id":"E1","name":"Erin"},{"_id":"E2","name":"Bao"}]`)
		if err := cache.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := len(cache.Participants()); got != 2 {
			t.Fatalf("expected 2 participants, got %d", got)
		}
	})

	t.Run("wrapped collection", func(t *testing.T) {
		ds.employees.Store(`{"employees":[{"id":"E3","name":"Cleo"}]}`)
		if err := cache.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		ps := cache.Participants()
		if len(ps) != 1 || ps[0].ID != "E3" {
			t.Fatalf("expected one participant E3, got %+v", ps)
		}
	})

	t.Run("single bare object", func(t *testing.T) {
		ds.employees.Store(`{"employeeId":"E9","name":"Solo"}`)
		if err := cache.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		ps := cache.Participants()
		if len(ps) != 1 || ps[0].ID != "E9" {
			t.Fatalf("expected one-element roster E9, got %+v", ps)
		}
	})
}

func TestDirectoryIDCoalescing(t *testing.T) {
	ds := newDirectoryServer(t)
	// _id wins over id, id wins over employeeId; entries with no id at all
	// are dropped at ingestion.
	ds.employees.Store(`[
		{"_id":"M1","id":"ignored","employeeId":"ignored","name":"A"},
		{"id":"I2","employeeId":"ignored","name":"B"},
		{"employeeId":"P3","name":"C"},
		{"name":"no-id"}
	]`)

	cache := NewDirectoryCache(NewClient(ds.URL))
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ps := cache.Participants()
	if len(ps) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(ps))
	}
	want := []string{"M1", "I2", "P3"}
	for i, p := range ps {
		if p.ID != want[i] {
			t.Errorf("participant %d: expected id %s, got %s", i, want[i], p.ID)
		}
	}
}

func TestDirectoryUnavailableFallback(t *testing.T) {
	ds := newDirectoryServer(t)
	ds.employees.Store(`[{"_id":"E1","name":"Erin"}]`)
	ds.channels.Store(`[{"id":"general","name":"General"}]`)

	cache := NewDirectoryCache(NewClient(ds.URL))
	ctx := context.Background()
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cache.Participants()) != 1 || len(cache.Channels()) != 1 {
		t.Fatal("initial load incomplete")
	}

	t.Run("failed reload falls back to an empty roster", func(t *testing.T) {
		ds.fail.Store(true)
		err := cache.Load(ctx)
		if !errors.Is(err, ErrDirectoryUnavailable) {
			t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
		}
		// Atomic replacement: nothing stale left behind.
		if len(cache.Participants()) != 0 || len(cache.Channels()) != 0 {
			t.Fatal("stale roster survived a failed load")
		}
	})

	t.Run("retry via re-load recovers", func(t *testing.T) {
		ds.fail.Store(false)
		if err := cache.Load(ctx); err != nil {
			t.Fatalf("reload: %v", err)
		}
		if len(cache.Participants()) != 1 {
			t.Fatal("reload did not repopulate the roster")
		}
	})

	t.Run("malformed body is unavailable too", func(t *testing.T) {
		ds.employees.Store(`"just a string"`)
		err := cache.Load(ctx)
		if !errors.Is(err, ErrDirectoryUnavailable) {
			t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
		}
	})
}

func TestDirectoryParticipantLookup(t *testing.T) {
	ds := newDirectoryServer(t)
	ds.employees.Store(`[{"_id":"E1","name":"Erin","department":"Ops"}]`)

	cache := NewDirectoryCache(NewClient(ds.URL))
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, ok := cache.Participant("E1")
	if !ok || p.Name != "Erin" || p.Department != "Ops" {
		t.Fatalf("lookup failed: %+v ok=%v", p, ok)
	}
	if _, ok := cache.Participant("E404"); ok {
		t.Fatal("unknown id reported found")
	}
}
