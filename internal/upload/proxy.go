package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/studygroup/internal/model"
)

// ProxyClient загружает файл через files-сервис: multipart-поля file,
// folder, groupId, uploadedBy на POST /api/cloudinary/upload.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewProxyClient(fileServiceURL string) *ProxyClient {
	return &ProxyClient{
		baseURL:    strings.TrimSuffix(fileServiceURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type proxyResponse struct {
	Message string           `json:"message"`
	File    model.FileRecord `json:"file"`
}

// Upload отправляет файл на прокси и возвращает сохранённые метаданные.
func (p *ProxyClient) Upload(ctx context.Context, in Input) (*model.FileRecord, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		fields := map[string]string{
			"folder":     in.Folder,
			"groupId":    in.GroupID,
			"uploadedBy": in.UploadedBy,
		}
		for k, v := range fields {
			if v == "" {
				continue
			}
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", in.Filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, in.Content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/cloudinary/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("proxy upload: %d: %s", resp.StatusCode, raw)
	}
	var out proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("proxy upload decode: %w", err)
	}
	return &out.File, nil
}
