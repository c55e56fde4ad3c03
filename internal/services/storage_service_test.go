package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobStoreRoundTrip(t *testing.T) {
	blobs := NewFileBlobStore(t.TempDir())
	ctx := context.Background()

	ref, err := blobs.Put(ctx, []byte("%PDF-1.4 license"), "application/pdf")
	require.NoError(t, err)
	assert.Regexp(t, `^documents/\d{8}/[A-Za-z0-9_-]{21}$`, ref)

	content, err := blobs.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 license"), content)

	_, err = blobs.Get(ctx, "documents/20260101/missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestFileBlobStoreRejectsTraversal(t *testing.T) {
	blobs := NewFileBlobStore(t.TempDir())

	for _, ref := range []string{"../etc/passwd", "/etc/passwd", "documents/../../secret"} {
		_, err := blobs.Get(context.Background(), ref)
		assert.Error(t, err, ref)
		assert.NotErrorIs(t, err, ErrBlobNotFound, ref)
	}
}

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
		ok      bool
	}{
		{"pdf", []byte("%PDF-1.7"), "application/pdf", true},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg", true},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png", true},
		{"text", []byte("hello world"), "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectDocumentType(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
