package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cinevideo/api/internal/model"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrUnsupportedAsset = errors.New("unsupported asset type")
	ErrInvalidAssetName = errors.New("invalid asset name")
)

// assetExtensions maps accepted upload content types to stored extensions.
var assetExtensions = map[string]string{
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
	"image/webp":  ".webp",
	"image/gif":   ".gif",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
}

// AssetService stores scene media in the assets directory that the renderer
// and the /assets route both read from.
type AssetService struct {
	dir       string
	publicURL string
}

func NewAssetService(dir, publicURL string) *AssetService {
	return &AssetService{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}
}

// Supported reports whether contentType can be uploaded.
func Supported(contentType string) bool {
	_, ok := assetExtensions[strings.ToLower(contentType)]
	return ok
}

// Save writes the upload under a generated name and returns its location.
func (s *AssetService) Save(ctx context.Context, contentType string, r io.Reader) (*model.Artifact, error) {
	ext, ok := assetExtensions[strings.ToLower(contentType)]
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assets dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write asset: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := uuid.New().String() + ext
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("failed to store asset: %w", err)
	}

	return &model.Artifact{Filename: name, URL: s.publicURL + "/assets/" + name}, nil
}

// Delete removes a stored asset by file name.
func (s *AssetService) Delete(_ context.Context, name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidAssetName
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrAssetNotFound
		}
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}
