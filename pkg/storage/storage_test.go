package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnailContentType(t *testing.T) {
	assert.Equal(t, "image/png", ThumbnailContentType("image/png", "a.bin"))
	assert.Equal(t, "image/jpeg", ThumbnailContentType("image/jpg", ""))
	assert.Equal(t, "image/webp", ThumbnailContentType("application/octet-stream", "poster.WEBP"))
	assert.Equal(t, "", ThumbnailContentType("application/pdf", "brochure.pdf"))
}

func TestThumbnailKey(t *testing.T) {
	key := ThumbnailKey("image/png")
	assert.True(t, strings.HasPrefix(key, "thumbnails/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, ThumbnailKey("image/png"))
}

func TestLocalPutDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal(dir, "/uploads/")
	require.NoError(t, err)

	key := "thumbnails/poster.png"
	require.NoError(t, l.Put(ctx, key, "image/png", strings.NewReader("png-bytes"), 9))

	data, err := os.ReadFile(filepath.Join(dir, "thumbnails", "poster.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "/uploads/thumbnails/poster.png", l.URL(key))

	require.NoError(t, l.Delete(ctx, key))
	require.NoError(t, l.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, "thumbnails", "poster.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, err)
	err = l.Put(context.Background(), "../../etc/passwd", "image/png", strings.NewReader("x"), 1)
	assert.Error(t, err)
}
