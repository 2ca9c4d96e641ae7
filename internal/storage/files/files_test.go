package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRemover struct {
	bucket, object string
	err            error
}

func (m *mockRemover) RemoveObject(_ context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	m.bucket, m.object = bucket, object
	return m.err
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		url     string
		prefix  string
		want    string
		wantErr bool
	}{
		{url: "/uploads/a.jpg", prefix: "/uploads", want: "a.jpg"},
		{url: "https://cdn.example.com/uploads/v1/a.jpg", prefix: "uploads/", want: "v1/a.jpg"},
		{url: "/uploads/../etc/passwd", prefix: "/uploads", wantErr: true},
		{url: "/other/a.jpg", prefix: "/uploads", wantErr: true},
		{url: "/uploads/", prefix: "/uploads", wantErr: true},
		{url: "/a.jpg", prefix: "", want: "a.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := objectKey(tt.url, tt.prefix)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocal_Remove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	l := NewLocal(dir, "/uploads")

	require.NoError(t, l.Remove(context.Background(), "/uploads/a.jpg"))
	_, err := os.Stat(p)
	require.ErrorIs(t, err, os.ErrNotExist)

	// Already gone.
	require.NoError(t, l.Remove(context.Background(), "/uploads/a.jpg"))
	require.ErrorIs(t, l.Remove(context.Background(), "/uploads/../a.jpg"), ErrOutsideStore)
}

func TestMinIO_Remove(t *testing.T) {
	r := &mockRemover{}
	m := &MinIO{client: r, bucket: "images"}

	require.NoError(t, m.Remove(context.Background(), "http://localhost:9000/images/variations/v1/0.jpg"))
	assert.Equal(t, "images", r.bucket)
	assert.Equal(t, "variations/v1/0.jpg", r.object)

	r.err = errors.New("access denied")
	require.ErrorContains(t, m.Remove(context.Background(), "http://localhost:9000/images/x.jpg"), "access denied")
	require.ErrorIs(t, m.Remove(context.Background(), "http://localhost:9000/other/x.jpg"), ErrOutsideStore)
}
