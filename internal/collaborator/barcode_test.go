package collaborator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

func TestBarcode_DecodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decode" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "image-bytes" {
			t.Errorf("body = %q", body)
		}
		w.Write([]byte(`{"code": "5901234123457"}`))
	}))
	defer srv.Close()

	b := NewBarcode(BarcodeConfig{Endpoint: srv.URL, Logger: testCoLogger()})
	code, err := b.Decode(context.Background(), strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if code != "5901234123457" {
		t.Errorf("code = %q", code)
	}
}

func TestBarcode_NotFoundMeansNotRecognized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewBarcode(BarcodeConfig{Endpoint: srv.URL, Logger: testCoLogger()})
	_, err := b.Decode(context.Background(), strings.NewReader("x"))
	if !errors.Is(err, domain.ErrCodeNotRecognized) {
		t.Errorf("err = %v, want ErrCodeNotRecognized", err)
	}
}

func TestBarcode_EmptyCodeMeansNotRecognized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": ""}`))
	}))
	defer srv.Close()

	b := NewBarcode(BarcodeConfig{Endpoint: srv.URL, Logger: testCoLogger()})
	_, err := b.Decode(context.Background(), strings.NewReader("x"))
	if !errors.Is(err, domain.ErrCodeNotRecognized) {
		t.Errorf("err = %v, want ErrCodeNotRecognized", err)
	}
}

func TestHTTPFetcher_FetchesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0)
	body, err := f.Fetch(context.Background(), domain.Attachment{Type: domain.AttachmentImage, URL: srv.URL + "/img.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestHTTPFetcher_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0)
	if _, err := f.Fetch(context.Background(), domain.Attachment{URL: srv.URL}); err == nil {
		t.Error("expected error for 403 response")
	}
}
