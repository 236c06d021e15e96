package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

// Input — один файл на загрузку любым путём.
type Input struct {
	Filename   string
	Content    io.Reader
	Folder     string
	GroupID    string
	UploadedBy string
}

// Uploader runs one upload over the probed path. The paths are equivalent
// in outcome, not interchangeable mid-flight: a failed upload reports its
// error, no retry on the other path.
type Uploader struct {
	selector *Selector
	proxy    *ProxyClient
	direct   *cloudinary.Client
	folder   string
}

func NewUploader(selector *Selector, proxy *ProxyClient, direct *cloudinary.Client, defaultFolder string) *Uploader {
	return &Uploader{selector: selector, proxy: proxy, direct: direct, folder: defaultFolder}
}

// Upload probes, uploads over the selected path and normalizes the result.
func (u *Uploader) Upload(ctx context.Context, in Input) (*model.UploadResult, error) {
	defer logger.DeferLogDuration("upload.Upload", time.Now())()
	if in.Folder == "" {
		in.Folder = u.folder
	}
	path := u.selector.SelectPath(ctx)
	switch path {
	case model.UploadPathProxied:
		rec, err := u.proxy.Upload(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("upload proxied: %w", err)
		}
		return &model.UploadResult{
			FileURL:  rec.URL,
			PublicID: rec.PublicID,
			PathUsed: model.UploadPathProxied,
		}, nil
	case model.UploadPathDirect:
		resp, err := u.direct.UploadUnsigned(ctx, in.Content, in.Filename, in.Folder)
		if err != nil {
			return nil, fmt.Errorf("upload direct: %w", err)
		}
		url := resp.SecureURL
		if url == "" {
			url = resp.URL
		}
		return &model.UploadResult{
			FileURL:  url,
			PublicID: resp.PublicID,
			PathUsed: model.UploadPathDirect,
		}, nil
	default:
		return nil, fmt.Errorf("upload: unknown path %q", path)
	}
}
