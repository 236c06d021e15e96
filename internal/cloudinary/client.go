// Package cloudinary is a minimal client for the Cloudinary upload API:
// signed uploads and deletes for the files-сервис, unsigned preset uploads
// for clients that bypass the proxy.
package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.cloudinary.com/v1_1"

type Client struct {
	cloudName    string
	apiKey       string
	apiSecret    string
	uploadPreset string

	apiBase    string
	httpClient *http.Client
}

// New создаёт клиент. apiKey/apiSecret нужны только для signed-вызовов,
// uploadPreset — только для unsigned.
func New(cloudName, apiKey, apiSecret, uploadPreset string) *Client {
	return &Client{
		cloudName:    cloudName,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		uploadPreset: uploadPreset,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

// WithAPIBase перенаправляет вызовы на другой адрес (httptest).
func (c *Client) WithAPIBase(base string) *Client {
	c.apiBase = strings.TrimSuffix(base, "/")
	return c
}

// UploadResponse — подмножество ответа Cloudinary, которое мы используем.
type UploadResponse struct {
	PublicID         string `json:"public_id"`
	URL              string `json:"url"`
	SecureURL        string `json:"secure_url"`
	OriginalFilename string `json:"original_filename"`
	Format           string `json:"format"`
	ResourceType     string `json:"resource_type"`
	Bytes            int64  `json:"bytes"`
}

// UploadUnsigned загружает файл через upload_preset (без ключей).
// Ресурс-тип auto: Cloudinary сам определяет image/raw/video.
func (c *Client) UploadUnsigned(ctx context.Context, file io.Reader, filename, folder string) (*UploadResponse, error) {
	fields := map[string]string{
		"upload_preset": c.uploadPreset,
	}
	if folder != "" {
		fields["folder"] = folder
	}
	return c.upload(ctx, file, filename, fields)
}

// UploadSigned загружает файл с серверной подписью (api_key + api_secret).
func (c *Client) UploadSigned(ctx context.Context, file io.Reader, filename, folder string) (*UploadResponse, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	params := map[string]string{"timestamp": ts}
	if folder != "" {
		params["folder"] = folder
	}
	fields := map[string]string{
		"api_key":   c.apiKey,
		"timestamp": ts,
		"signature": c.sign(params),
	}
	if folder != "" {
		fields["folder"] = folder
	}
	return c.upload(ctx, file, filename, fields)
}

// Destroy удаляет ресурс по public_id (signed).
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	params := map[string]string{"public_id": publicID, "timestamp": ts}

	var body strings.Builder
	buf := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"public_id": publicID,
		"timestamp": ts,
		"api_key":   c.apiKey,
		"signature": c.sign(params),
	} {
		if err := buf.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := buf.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/image/destroy", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body.String()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", buf.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cloudinary destroy: %d: %s", resp.StatusCode, raw)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, file io.Reader, filename string, fields map[string]string) (*UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	url := fmt.Sprintf("%s/%s/auto/upload", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cloudinary upload: %d: %s", resp.StatusCode, raw)
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cloudinary upload decode: %w", err)
	}
	return &out, nil
}

// sign строит подпись API: параметры сортируются по имени, склеиваются
// k=v через &, секрет добавляется в конец, берётся SHA-1.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}
