package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReverseGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("format") != "jsonv2" {
			t.Fatalf("unexpected format: %s", q.Get("format"))
		}
		if q.Get("lat") != "52.52" || q.Get("lon") != "13.405" {
			t.Fatalf("unexpected coordinates: lat=%s lon=%s", q.Get("lat"), q.Get("lon"))
		}
		if ua := r.Header.Get("User-Agent"); ua != "taskmarket-test" {
			t.Fatalf("unexpected user agent: %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"Alexanderplatz 1, Mitte, Berlin, Deutschland"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "taskmarket-test", time.Second)
	addr, err := c.ReverseGeocode(context.Background(), 52.52, 13.405)
	if err != nil {
		t.Fatalf("reverse geocode: %v", err)
	}
	if addr != "Alexanderplatz 1, Mitte, Berlin, Deutschland" {
		t.Fatalf("unexpected address: %q", addr)
	}
}

func TestReverseGeocodeFailures(t *testing.T) {
	testCases := map[string]http.HandlerFunc{
		"service_error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"error_payload": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
		},
		"empty_result": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
		"invalid_json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}
	for name, handler := range testCases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			t.Cleanup(srv.Close)

			c := New(srv.URL, "taskmarket-test", time.Second)
			if _, err := c.ReverseGeocode(context.Background(), 52.52, 13.405); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReverseGeocodeContextCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := New(srv.URL, "taskmarket-test", time.Minute)
	if _, err := c.ReverseGeocode(ctx, 52.52, 13.405); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			t.Fatalf("double slash in path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"display_name":"somewhere"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/", "taskmarket-test", time.Second)
	if _, err := c.ReverseGeocode(context.Background(), 1, 2); err != nil {
		t.Fatalf("reverse geocode: %v", err)
	}
}
