// Package uploads stores user files content-addressed by their sha256 hash
// so identical uploads share one file on disk.
package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"desacordo-backend/internal/models"
)

var (
	ErrTooLarge = errors.New("file is too large")
	ErrEmpty    = errors.New("file is empty")
)

const URLPrefix = "/cdn/"

type Store struct {
	dir     string
	maxSize int64
	mutex   sync.Mutex
}

func New(dir string, maxSize int64) *Store {
	return &Store{dir: dir, maxSize: maxSize}
}

func (s *Store) Dir() string {
	return s.dir
}

// HandleUpload reads the multipart "file" field of r.
func (s *Store) HandleUpload(r *http.Request) (models.Attachment, error) {
	formFile, header, err := r.FormFile("file")
	if err != nil {
		return models.Attachment{}, err
	}
	defer formFile.Close()

	return s.Save(formFile, header.Filename)
}

func attachmentType(contentType string) models.AttachmentType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return models.AttachmentVideo
	default:
		return models.AttachmentFile
	}
}

// extension keeps short alphanumeric extensions only.
func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func (s *Store) Save(file io.Reader, name string) (models.Attachment, error) {
	inputBytes, err := io.ReadAll(io.LimitReader(file, s.maxSize+1))
	if err != nil {
		return models.Attachment{}, err
	}
	if int64(len(inputBytes)) > s.maxSize {
		return models.Attachment{}, ErrTooLarge
	}
	if len(inputBytes) == 0 {
		return models.Attachment{}, ErrEmpty
	}

	// use the hash for filename
	hash := sha256.Sum256(inputBytes)
	fileName := hex.EncodeToString(hash[:]) + extension(name)
	fullPath := filepath.Join(s.dir, fileName)

	if err := s.writeOnce(fullPath, inputBytes); err != nil {
		return models.Attachment{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Attachment{}, err
	}

	return models.Attachment{
		ID:   id.String(),
		Type: attachmentType(http.DetectContentType(inputBytes)),
		URL:  URLPrefix + fileName,
		Name: filepath.Base(name),
		Size: int64(len(inputBytes)),
	}, nil
}

func (s *Store) writeOnce(fullPath string, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// make folders if they don't exist yet
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return err
	}

	// same hash means same content, keep the existing file
	_, err := os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(fullPath, data, 0644); err != nil {
			return fmt.Errorf("writing upload: %w", err)
		}
		return nil
	}
	return err
}
