package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StoredFile describes a persisted upload. The URL is publicly resolvable;
// Path is relative to the store root.
type StoredFile struct {
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename"`
	Path             string    `json:"path"`
	URL              string    `json:"url"`
	Size             int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// Store persists respondent uploads under a (survey, question) namespace.
type Store interface {
	Save(surveyID, questionID string, fh *multipart.FileHeader) (*StoredFile, error)
}

// DiskStore writes uploads to the local filesystem and serves them from
// BaseURL + "/uploads/".
type DiskStore struct {
	Root    string
	BaseURL string
}

func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{Root: root, BaseURL: baseURL}
}

func (s *DiskStore) Save(surveyID, questionID string, fh *multipart.FileHeader) (*StoredFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	stored := uuid.NewString() + filepath.Ext(fh.Filename)
	relPath := path.Join(surveyID, questionID, stored)

	dir := filepath.Join(s.Root, surveyID, questionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %q: %w", dir, err)
	}

	dst, err := os.Create(filepath.Join(dir, stored))
	if err != nil {
		return nil, fmt.Errorf("create upload file %q: %w", stored, err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		return nil, fmt.Errorf("write upload %q: %w", fh.Filename, err)
	}

	return &StoredFile{
		OriginalFilename: fh.Filename,
		StoredFilename:   stored,
		Path:             relPath,
		URL:              s.BaseURL + "/uploads/" + relPath,
		Size:             size,
		MimeType:         fh.Header.Get("Content-Type"),
		UploadedAt:       time.Now(),
	}, nil
}
