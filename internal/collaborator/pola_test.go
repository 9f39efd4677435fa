package collaborator

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testCoLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPola_ByCodeMapsWireFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_by_code" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("code"); got != "5901234123457" {
			t.Errorf("code = %q", got)
		}
		if got := r.URL.Query().Get("device_id"); got != "dev-1" {
			t.Errorf("device_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "Wawel S.A.",
			"plScore": 72,
			"plCapital": 100,
			"plWorkers": true,
			"plRnD": true,
			"plRegistered": true,
			"plNotGlobEnt": true,
			"description": "Polski producent."
		}`))
	}))
	defer srv.Close()

	p := NewPola(PolaConfig{APIBase: srv.URL, DeviceID: "dev-1", Timeout: 5 * time.Second, Logger: testCoLogger()})
	result, err := p.ByCode(context.Background(), "5901234123457")
	if err != nil {
		t.Fatal(err)
	}
	if result.Score != 72 || result.Name != "Wawel S.A." || result.CapitalShare != 100 {
		t.Errorf("result = %+v", result)
	}
	if !result.ProducesInPoland || !result.ResearchInPoland || !result.RegisteredInPoland || !result.NotForeignSubsidiary {
		t.Errorf("findings = %+v", result)
	}
	if result.Description == nil || *result.Description != "Polski producent." {
		t.Errorf("description = %v", result.Description)
	}
}

func TestPola_NullDescriptionStaysNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "Nieznany", "plScore": 0, "description": null}`))
	}))
	defer srv.Close()

	p := NewPola(PolaConfig{APIBase: srv.URL, Logger: testCoLogger()})
	result, err := p.ByCode(context.Background(), "12345678")
	if err != nil {
		t.Fatal(err)
	}
	if result.Description != nil {
		t.Errorf("description = %v, want nil", result.Description)
	}
}

func TestPola_RetriesTransientServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"name": "Wawel S.A.", "plScore": 72}`))
	}))
	defer srv.Close()

	p := NewPola(PolaConfig{APIBase: srv.URL, Logger: testCoLogger()})
	result, err := p.ByCode(context.Background(), "5901234123457")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want a single retry", calls)
	}
	if result.Score != 72 {
		t.Errorf("score = %d", result.Score)
	}
}

func TestPola_NonOKStatusErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPola(PolaConfig{APIBase: srv.URL, Logger: testCoLogger()})
	if _, err := p.ByCode(context.Background(), "12345678"); err == nil {
		t.Error("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("calls = %d, a client error must not be retried", calls)
	}
}

func TestPola_ConnectionFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	p := NewPola(PolaConfig{APIBase: srv.URL, Logger: testCoLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the retry backoff
	if _, err := p.ByCode(ctx, "12345678"); err == nil {
		t.Error("expected error for refused connection")
	}
}
