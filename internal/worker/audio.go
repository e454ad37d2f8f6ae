package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxnote/voxnote-api/internal/transcription"
)

// AudioFetcher retrieves the stored audio payload for a note. The
// storage engine itself lives outside this service; implementations
// only read what the upload path already wrote.
type AudioFetcher interface {
	// Fetch returns the audio clip for the given object key.
	// Returns ErrAudioNotFound when no object exists under the key.
	Fetch(ctx context.Context, objectKey string) (transcription.AudioClip, error)
}

// FilesystemFetcher reads audio objects from a local directory tree,
// with object keys as relative paths. Suitable for development and
// single-node deployments.
type FilesystemFetcher struct {
	root string
}

// NewFilesystemFetcher creates a fetcher rooted at the given directory.
func NewFilesystemFetcher(root string) (*FilesystemFetcher, error) {
	if root == "" {
		return nil, errors.New("root directory cannot be empty")
	}
	return &FilesystemFetcher{root: root}, nil
}

var _ AudioFetcher = (*FilesystemFetcher)(nil)

// Fetch implements AudioFetcher.Fetch.
func (f *FilesystemFetcher) Fetch(ctx context.Context, objectKey string) (transcription.AudioClip, error) {
	if err := ctx.Err(); err != nil {
		return transcription.AudioClip{}, err
	}

	// Object keys are relative; reject any that escape the root.
	cleaned := filepath.Clean(objectKey)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return transcription.AudioClip{}, fmt.Errorf("%w: invalid object key %q", ErrAudioNotFound, objectKey)
	}

	data, err := os.ReadFile(filepath.Join(f.root, cleaned))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return transcription.AudioClip{}, fmt.Errorf("%w: %s", ErrAudioNotFound, objectKey)
		}
		return transcription.AudioClip{}, fmt.Errorf("failed to read audio object %s: %w", objectKey, err)
	}

	return transcription.AudioClip{
		Data:     data,
		MIMEType: mimeTypeForKey(cleaned),
	}, nil
}

// mimeTypeForKey maps an object key extension to an audio MIME type,
// defaulting to ogg for unknown extensions.
func mimeTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp3":
		return "audio/mp3"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return "audio/ogg"
	}
}
