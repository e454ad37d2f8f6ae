package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemFetcher(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "user1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "user1", "clip.mp3"), []byte("audio-bytes"), 0o644))

	fetcher, err := NewFilesystemFetcher(root)
	require.NoError(t, err)

	t.Run("reads existing object", func(t *testing.T) {
		t.Parallel()

		clip, err := fetcher.Fetch(context.Background(), "user1/clip.mp3")
		require.NoError(t, err)
		assert.Equal(t, []byte("audio-bytes"), clip.Data)
		assert.Equal(t, "audio/mp3", clip.MIMEType)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()

		_, err := fetcher.Fetch(context.Background(), "user1/missing.ogg")
		assert.ErrorIs(t, err, ErrAudioNotFound)
	})

	t.Run("rejects keys escaping the root", func(t *testing.T) {
		t.Parallel()

		_, err := fetcher.Fetch(context.Background(), "../outside.ogg")
		assert.ErrorIs(t, err, ErrAudioNotFound)

		_, err = fetcher.Fetch(context.Background(), "/etc/passwd")
		assert.ErrorIs(t, err, ErrAudioNotFound)
	})

	t.Run("empty root rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewFilesystemFetcher("")
		assert.Error(t, err)
	})
}

func TestMimeTypeForKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{"a/b.mp3", "audio/mp3"},
		{"a/b.WAV", "audio/wav"},
		{"a/b.m4a", "audio/aac"},
		{"a/b.flac", "audio/flac"},
		{"a/b.webm", "audio/webm"},
		{"a/b.ogg", "audio/ogg"},
		{"a/b", "audio/ogg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mimeTypeForKey(tt.key), tt.key)
	}
}
