package model

import "time"

// FileRecord — метаданные загруженного файла (хранится files-сервисом).
type FileRecord struct {
	ID           string    `json:"id"`
	FileName     string    `json:"filename"`
	OriginalName string    `json:"originalname"`
	MimeType     string    `json:"mimetype"`
	GroupID      string    `json:"groupId,omitempty"`
	UploadedBy   string    `json:"uploadedBy,omitempty"`
	URL          string    `json:"url"`
	PublicID     string    `json:"publicId,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// UploadPath — какой из двух эквивалентных путей загрузки выполнился.
type UploadPath string

const (
	UploadPathProxied UploadPath = "proxied"
	UploadPathDirect  UploadPath = "direct"
)

// UploadResult — результат загрузки, одинаковой формы для обоих путей:
// код сохранения метаданных ниже по потоку видит ровно один контракт.
type UploadResult struct {
	FileURL  string     `json:"fileUrl"`
	PublicID string     `json:"publicId,omitempty"`
	PathUsed UploadPath `json:"pathUsed"`
}
