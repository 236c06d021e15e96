package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studygroup/internal/group"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/upload"
)

// fileStore — метаданные загруженных файлов. *repository.FileRepository
// удовлетворяет.
type fileStore interface {
	Create(ctx context.Context, f *model.FileRecord) error
}

type UploadHandler struct {
	uploader      *upload.Uploader
	files         fileStore
	groups        *group.Service
	maxUploadSize int64
}

func NewUploadHandler(uploader *upload.Uploader, files fileStore, groups *group.Service, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{uploader: uploader, files: files, groups: groups, maxUploadSize: maxUploadSize}
}

// Upload — POST /api/uploads: probe выбирает путь (прокси или прямой),
// результат нормализуется к одной форме. Прокси сам сохраняет метаданные;
// за прямой путь их записывает этот handler.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	groupID := r.FormValue("groupId")
	filename := strings.ReplaceAll(header.Filename, "+", " ")

	res, err := h.uploader.Upload(r.Context(), upload.Input{
		Filename:   filename,
		Content:    file,
		GroupID:    groupID,
		UploadedBy: userID,
	})
	if err != nil {
		logger.Errorf("upload user=%s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}

	if res.PathUsed == model.UploadPathDirect {
		rec := &model.FileRecord{
			ID:           uuid.NewString(),
			FileName:     filepath.Base(res.PublicID),
			OriginalName: filepath.Base(filename),
			MimeType:     header.Header.Get("Content-Type"),
			GroupID:      groupID,
			UploadedBy:   userID,
			URL:          res.FileURL,
			PublicID:     res.PublicID,
			UploadedAt:   time.Now().UTC(),
		}
		// Файл уже в Cloudinary, но без записи метаданных он не виден в
		// списках группы — это ошибка запроса, не best-effort.
		if err := h.files.Create(r.Context(), rec); err != nil {
			logger.Errorf("upload: save metadata user=%s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "failed to save file metadata")
			return
		}
	}

	if groupID != "" {
		err := h.groups.NotifyDocument(r.Context(), groupID, userID, filepath.Base(filename))
		if err != nil && !errors.Is(err, group.ErrNotMember) {
			logger.Errorf("upload: document fan-out group=%s: %v", groupID, err)
		}
	}
	writeJSON(w, http.StatusCreated, res)
}
