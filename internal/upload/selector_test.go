package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/model"
)

func TestSelectPathProxiedWhenProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("probe path = %q, want /api/status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "online"})
	}))
	defer srv.Close()

	s := NewSelector(srv.URL, 2*time.Second)
	if got := s.SelectPath(context.Background()); got != model.UploadPathProxied {
		t.Fatalf("path = %q, want proxied", got)
	}
}

func TestSelectPathDirectOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSelector(srv.URL, 2*time.Second)
	if got := s.SelectPath(context.Background()); got != model.UploadPathDirect {
		t.Fatalf("path = %q, want direct", got)
	}
}

func TestSelectPathDirectOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	s := NewSelector(srv.URL, 50*time.Millisecond)
	if got := s.SelectPath(context.Background()); got != model.UploadPathDirect {
		t.Fatalf("path = %q, want direct", got)
	}
}

func TestSelectPathDirectOnConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // порт освобождён, соединение будет отклонено

	s := NewSelector(srv.URL, 2*time.Second)
	if got := s.SelectPath(context.Background()); got != model.UploadPathDirect {
		t.Fatalf("path = %q, want direct", got)
	}
}

func TestUploadProxiedPath(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			w.WriteHeader(http.StatusOK)
		case "/api/cloudinary/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("groupId"); got != "g1" {
				t.Errorf("groupId = %q, want g1", got)
			}
			if got := r.FormValue("uploadedBy"); got != "alice" {
				t.Errorf("uploadedBy = %q, want alice", got)
			}
			if _, _, err := r.FormFile("file"); err != nil {
				t.Errorf("file part missing: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"message": "File uploaded successfully",
				"file": map[string]any{
					"url":      "https://res.cloudinary.com/demo/notes.pdf",
					"publicId": "study-group-uploads/notes",
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer probe.Close()

	u := NewUploader(
		NewSelector(probe.URL, 2*time.Second),
		NewProxyClient(probe.URL),
		cloudinary.New("demo", "", "", "preset"),
		"study-group-uploads",
	)
	res, err := u.Upload(context.Background(), Input{
		Filename:   "notes.pdf",
		Content:    strings.NewReader("pdf bytes"),
		GroupID:    "g1",
		UploadedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.PathUsed != model.UploadPathProxied {
		t.Fatalf("path = %q, want proxied", res.PathUsed)
	}
	if res.FileURL != "https://res.cloudinary.com/demo/notes.pdf" {
		t.Fatalf("url = %q", res.FileURL)
	}
	if res.PublicID != "study-group-uploads/notes" {
		t.Fatalf("publicId = %q", res.PublicID)
	}
}

func TestUploadDirectPathNoProxyFallback(t *testing.T) {
	// Прокси лежит: probe должен увести загрузку на прямой путь.
	var proxyCalls int
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyCalls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer proxy.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/auto/upload") {
			t.Errorf("direct path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("upload_preset"); got != "preset" {
			t.Errorf("upload_preset = %q, want preset", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"secure_url": "https://res.cloudinary.com/demo/direct.pdf",
			"public_id":  "study-group-uploads/direct",
		})
	}))
	defer direct.Close()

	u := NewUploader(
		NewSelector(proxy.URL, 200*time.Millisecond),
		NewProxyClient(proxy.URL),
		cloudinary.New("demo", "", "", "preset").WithAPIBase(direct.URL),
		"study-group-uploads",
	)
	res, err := u.Upload(context.Background(), Input{
		Filename: "direct.pdf",
		Content:  strings.NewReader("pdf bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.PathUsed != model.UploadPathDirect {
		t.Fatalf("path = %q, want direct", res.PathUsed)
	}
	if res.FileURL != "https://res.cloudinary.com/demo/direct.pdf" {
		t.Fatalf("url = %q", res.FileURL)
	}
	if proxyCalls != 1 {
		t.Fatalf("proxy hit %d times, want 1 (probe only)", proxyCalls)
	}
}
