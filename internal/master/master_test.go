package master

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestListReturnsFatalErrorOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := New(Config{URL: srv.URL, Group: "doom", Name: "srv1", Username: "u", Password: "p"})
	if err := m.List(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected List to error on 401")
	}
}

func TestListSucceedsOn201(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := New(Config{URL: srv.URL, Group: "doom", Name: "srv1", Username: "u", Password: "p"})
	if err := m.List(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateDisablesOn408(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer srv.Close()

	m := New(Config{URL: srv.URL, Group: "doom", Name: "srv1"})
	done := make(chan struct{})
	m.Update(context.Background(), []byte(`{}`), func(error) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async update")
	}
	if !m.Disabled() {
		t.Fatal("expected the master to be disabled after a 408")
	}
}

func TestShouldUpdateStaggersByIndex(t *testing.T) {
	a := New(Config{Index: 0})
	b := New(Config{Index: 1})

	var aHits, bHits int32
	for tic := uint32(0); tic < 70; tic++ {
		if a.ShouldUpdate(tic, 35) {
			atomic.AddInt32(&aHits, 1)
		}
		if b.ShouldUpdate(tic, 35) {
			atomic.AddInt32(&bHits, 1)
		}
	}
	if aHits == 0 || bHits == 0 {
		t.Fatalf("expected both masters to fire at least once within one 70-tic interval, got a=%d b=%d", aHits, bHits)
	}
}
