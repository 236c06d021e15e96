// Package fileserver — files-сервис: приём multipart-загрузок, серверная
// (signed) отправка в Cloudinary и учёт метаданных в Postgres. Его
// GET /api/status одновременно служит probe для выбора пути загрузки.
package fileserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/repository"
)

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные — разрешены.
var BlockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

// FileStore — учёт метаданных файлов. *repository.FileRepository удовлетворяет.
type FileStore interface {
	Create(ctx context.Context, f *model.FileRecord) error
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	ListByGroup(ctx context.Context, groupID string) ([]model.FileRecord, error)
	Delete(ctx context.Context, id string) error
}

// Service обрабатывает загрузку, список и удаление файлов группы.
type Service struct {
	files         FileStore
	cloud         *cloudinary.Client
	defaultFolder string
	maxUploadSize int64
}

func New(files FileStore, cloud *cloudinary.Client, defaultFolder string, maxUploadSize int64) *Service {
	return &Service{
		files:         files,
		cloud:         cloud,
		defaultFolder: defaultFolder,
		maxUploadSize: maxUploadSize,
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("fileserver writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" {
		body["details"] = details
	}
	s.writeJSON(w, status, body)
}

// Status — probe живости. 200 здесь означает, что клиенты пойдут через прокси.
func (s *Service) Status(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

// Upload обрабатывает POST multipart/form-data: поле file обязательно,
// folder/groupId/uploadedBy — опциональные.
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "file too large", "")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file uploaded", "")
		return
	}
	defer file.Close()

	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем.
	rawFilename := strings.ReplaceAll(header.Filename, "+", " ")
	ext := strings.ToLower(filepath.Ext(rawFilename))
	if BlockedExt[ext] {
		s.writeError(w, http.StatusBadRequest, "file type not allowed", "")
		return
	}

	folder := r.FormValue("folder")
	if folder == "" {
		folder = s.defaultFolder
	}

	resp, err := s.cloud.UploadSigned(ctx, file, rawFilename, folder)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("fileserver: cloudinary upload: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	url := resp.SecureURL
	if url == "" {
		url = resp.URL
	}
	rec := &model.FileRecord{
		ID:           uuid.NewString(),
		FileName:     filepath.Base(resp.PublicID),
		OriginalName: filepath.Base(rawFilename),
		MimeType:     header.Header.Get("Content-Type"),
		GroupID:      r.FormValue("groupId"),
		UploadedBy:   r.FormValue("uploadedBy"),
		URL:          url,
		PublicID:     resp.PublicID,
		UploadedAt:   time.Now().UTC(),
	}
	if err := s.files.Create(ctx, rec); err != nil {
		logger.Errorf("fileserver: save metadata: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"file":    rec,
	})
}

// ListByGroup отдаёт файлы группы, новые первыми.
func (s *Service) ListByGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	files, err := s.files.ListByGroup(r.Context(), groupID)
	if err != nil {
		logger.Errorf("fileserver: list group %s: %v", groupID, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch files", err.Error())
		return
	}
	if files == nil {
		files = []model.FileRecord{}
	}
	s.writeJSON(w, http.StatusOK, files)
}

// Delete удаляет файл: сначала ресурс в Cloudinary, затем метаданные.
// Сбой удаления в Cloudinary не блокирует удаление записи (ресурс мог быть
// удалён раньше вручную).
func (s *Service) Delete(w http.ResponseWriter, r *http.Request, fileID string) {
	ctx := r.Context()
	rec, err := s.files.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "File not found", "")
		return
	}
	if err != nil {
		logger.Errorf("fileserver: load %s: %v", fileID, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to delete file", err.Error())
		return
	}

	if rec.PublicID != "" {
		if err := s.cloud.Destroy(ctx, rec.PublicID); err != nil {
			logger.Errorf("fileserver: cloudinary destroy %s: %v", rec.PublicID, err)
		}
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "File not found", "")
			return
		}
		logger.Errorf("fileserver: delete %s: %v", fileID, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to delete file", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}
