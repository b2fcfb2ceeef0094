package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastFetcher() *Fetcher {
	return &Fetcher{Timeout: 2 * time.Second, Retries: 2, Backoff: time.Millisecond}
}

func TestFetch_ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	doc, err := fastFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != "[]" || doc.Size != 2 || doc.ContentType != "application/json" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetch_gzipBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("#EXTM3U\n"))
	zw.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	doc, err := fastFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != "#EXTM3U\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestFetch_retriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := fastFetcher().Fetch(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetch_notFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Kind != KindHTTPStatus || fe.Status != 404 || fe.Attempts != 1 {
		t.Errorf("FetchError = %+v", fe)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFetch_timeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	f := &Fetcher{Timeout: 30 * time.Millisecond, Retries: 1, Backoff: time.Millisecond}
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Kind != KindTimeout {
		t.Errorf("Kind = %v, want timeout", fe.Kind)
	}
	if fe.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", fe.Attempts)
	}
}

func TestFetch_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := &Fetcher{Timeout: time.Second, Backoff: time.Millisecond}
	_, err := f.Fetch(context.Background(), url)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindConnection {
		t.Fatalf("err = %v, want connection FetchError", err)
	}
}

func TestFetch_tlsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("<tv/>"))
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Kind != KindTLS || fe.Attempts != 1 {
		t.Errorf("FetchError = %+v", fe)
	}
	if calls != 0 {
		t.Errorf("handler reached %d times", calls)
	}
}

func TestFetchEPG_insecureFallback(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<tv/>"))
	}))
	defer srv.Close()

	f := fastFetcher()
	if _, err := f.FetchEPG(context.Background(), srv.URL); err == nil {
		t.Fatal("expected TLS failure without fallback")
	}
	f.InsecureEPGFallback = true
	doc, err := f.FetchEPG(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != "<tv/>" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestFetchAll_guideFailureDegrades(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`["a"]`)) })
	mux.HandleFunc("/b.m3u", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("#EXTM3U")) })
	mux.HandleFunc("/epg.xml", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "gone", http.StatusGone) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := fastFetcher().FetchAll(context.Background(), []string{srv.URL + "/a.json", srv.URL + "/b.m3u"}, srv.URL+"/epg.xml")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Primary) != 2 || string(res.Primary[0].Body) != `["a"]` || string(res.Primary[1].Body) != "#EXTM3U" {
		t.Errorf("primary out of order or missing: %+v", res.Primary)
	}
	if res.EPG != nil || res.EPGErr == nil {
		t.Errorf("EPG = %v, EPGErr = %v", res.EPG, res.EPGErr)
	}
}

func TestFetchAll_primaryFailureFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := fastFetcher().FetchAll(context.Background(), []string{srv.URL}, "")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 403 {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchError_message(t *testing.T) {
	e := &FetchError{Kind: KindHTTPStatus, Source: "http://x/a.json", Status: 502, Attempts: 3}
	if got, want := e.Error(), "fetch http://x/a.json: HTTP 502 after 3 attempt(s)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
