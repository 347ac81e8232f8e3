package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/blob"
	blobfs "parceltrack/internal/blob/fs"
	"parceltrack/internal/blob/memory"
)

func TestIssueKey(t *testing.T) {
	at := time.Unix(0, 1700000000123456789)

	assert.Equal(t, "issues/PKG1-IN/photo-1700000000123456789-0.jpg", blob.IssueKey("PKG1-IN", "photo.jpg", at, 0))
	assert.Equal(t, "issues/PKG1-IN/my_box_-1700000000123456789-2.png", blob.IssueKey("PKG1-IN", `C:\Users\me\my box!.png`, at, 2))
	assert.Equal(t, "issues/a_b-IN/file-1700000000123456789-1", blob.IssueKey("a/b-IN", "", at, 1))
	assert.NotContains(t, blob.IssueKey("../x", "../../etc/passwd", at, 0), "..")
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://host/files/issues/a/b%20c.jpg", blob.JoinURL("http://host/files/", "issues/a/b c.jpg"))
}

func TestStores(t *testing.T) {
	fsStore, err := blobfs.New(filepath.Join(t.TempDir(), "attachments"), "http://localhost:8080/files")
	require.NoError(t, err)

	cases := map[string]blob.Store{
		"fs":     fsStore,
		"memory": memory.New(),
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "issues/PKG1-IN/photo-1-0.jpg"

			info, err := store.Put(ctx, key, strings.NewReader("jpeg-bytes"), blob.PutOptions{ContentType: "image/jpeg"})
			require.NoError(t, err)
			assert.Equal(t, int64(len("jpeg-bytes")), info.Size)
			assert.Equal(t, store.URL(key), info.URL)

			_, err = store.Put(ctx, key, strings.NewReader("again"), blob.PutOptions{})
			require.ErrorIs(t, err, blob.ErrExists)

			existed, err := store.Delete(ctx, key)
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = store.Delete(ctx, key)
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestFilesystemStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := blobfs.New(root, "")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "issues/X-IN/a-1-0.txt", strings.NewReader("hello"), blob.PutOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "issues", "X-IN", "a-1-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "/files/issues/X-IN/a-1-0.txt", store.URL("issues/X-IN/a-1-0.txt"))

	_, err = store.Put(context.Background(), "../escape", strings.NewReader("x"), blob.PutOptions{})
	require.Error(t, err)
}

func TestMemoryStoreFailDelete(t *testing.T) {
	store := memory.New()
	_, err := store.Put(context.Background(), "k", strings.NewReader("v"), blob.PutOptions{})
	require.NoError(t, err)
	store.FailDelete = map[string]bool{"k": true}

	_, err = store.Delete(context.Background(), "k")
	require.Error(t, err)
	data, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(data))
}
