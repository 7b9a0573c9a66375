package models

import (
	"encoding/json"
	"time"
)

// FileRecord describes one stored object owned by a user.
type FileRecord struct {
	ID        string    `json:"_id"`
	OwnerID   string    `json:"ownerId"`
	FileName  string    `json:"fileName"`
	FileKey   string    `json:"fileKey"`
	FileSize  int64     `json:"fileSize"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UploadURLRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type PresignedPost struct {
	URL    string     `json:"url"`
	Fields FormFields `json:"fields"`
}

// UploadTarget is where and how to send the bytes of a new file.
type UploadTarget struct {
	PresignedPost PresignedPost `json:"presignedPost"`
	FileKey       string        `json:"fileKey"`
}

type CompleteUploadRequest struct {
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// CompleteUploadResponse accepts both a bare file record and one wrapped in
// {"file": ...}.
type CompleteUploadResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	File    *FileRecord `json:"file,omitempty"`
}

type DownloadURL struct {
	URL string `json:"url"`
}

func (r *CompleteUploadResponse) UnmarshalJSON(b []byte) error {
	type wrapped CompleteUploadResponse
	var w wrapped
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.File == nil {
		var bare FileRecord
		if err := json.Unmarshal(b, &bare); err == nil && bare.ID != "" {
			w.File = &bare
			w.Success = true
		}
	}
	*r = CompleteUploadResponse(w)
	return nil
}
