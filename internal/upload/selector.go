// Package upload selects between the two equivalent file upload paths: the
// files-сервис proxy (server-side signed) and direct unsigned Cloudinary.
// The decision is per-upload, driven by a liveness probe of the proxy.
package upload

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

// Selector probes the files-сервис before each upload. Every outcome except
// an HTTP 200 inside the timeout window (refused, timed out, 5xx) routes
// the upload direct. The probe result is not cached.
type Selector struct {
	statusURL  string
	httpClient *http.Client
}

// NewSelector строит селектор. fileServiceURL пустой — probe всегда direct.
func NewSelector(fileServiceURL string, timeout time.Duration) *Selector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &Selector{httpClient: &http.Client{Timeout: timeout}}
	if fileServiceURL != "" {
		s.statusURL = strings.TrimSuffix(fileServiceURL, "/") + "/api/status"
	}
	return s
}

// SelectPath возвращает путь для одной конкретной загрузки.
func (s *Selector) SelectPath(ctx context.Context) model.UploadPath {
	defer logger.DeferLogDuration("upload.SelectPath", time.Now())()
	if s.statusURL == "" {
		return model.UploadPathDirect
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.statusURL, nil)
	if err != nil {
		return model.UploadPathDirect
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Debugf("upload: probe %s: %v", s.statusURL, err)
		return model.UploadPathDirect
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Debugf("upload: probe %s: status %d", s.statusURL, resp.StatusCode)
		return model.UploadPathDirect
	}
	return model.UploadPathProxied
}
