package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/upload"
)

type fakeFileStore struct {
	createErr error
	created   []model.FileRecord
}

func (s *fakeFileStore) Create(_ context.Context, f *model.FileRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, *f)
	return nil
}

// newDirectUploader строит uploader, который всегда выбирает прямой путь
// (probe отключён) и грузит в поддельный Cloudinary.
func newDirectUploader(t *testing.T) *upload.Uploader {
	t.Helper()
	cloudSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cloudinary.UploadResponse{
			PublicID:  "docs/notes_abc123",
			SecureURL: "https://res.example.com/docs/notes_abc123.pdf",
		})
	}))
	t.Cleanup(cloudSrv.Close)

	direct := cloudinary.New("demo", "key", "secret", "preset").WithAPIBase(cloudSrv.URL)
	return upload.NewUploader(
		upload.NewSelector("", time.Second),
		upload.NewProxyClient(""),
		direct,
		"docs",
	)
}

func uploadRequest(t *testing.T, userID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	wr := multipart.NewWriter(&buf)
	part, err := wr.CreateFormFile("file", "notes.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", wr.FormDataContentType())
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestUploadDirectPathPersistsMetadata(t *testing.T) {
	uploader := newDirectUploader(t)
	store := &fakeFileStore{}
	h := NewUploadHandler(uploader, store, nil, 10<<20)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "alice"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if len(store.created) != 1 {
		t.Fatalf("persisted %d records, want 1", len(store.created))
	}
	got := store.created[0]
	if got.UploadedBy != "alice" || got.PublicID != "docs/notes_abc123" {
		t.Fatalf("record = %+v", got)
	}
	if got.URL != "https://res.example.com/docs/notes_abc123.pdf" {
		t.Fatalf("url = %q", got.URL)
	}
}

func TestUploadDirectPathMetadataFailureSurfaces(t *testing.T) {
	uploader := newDirectUploader(t)
	store := &fakeFileStore{createErr: errors.New("db down")}
	h := NewUploadHandler(uploader, store, nil, 10<<20)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "alice"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when metadata write fails", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("error body missing: %s", rec.Body.String())
	}
}
