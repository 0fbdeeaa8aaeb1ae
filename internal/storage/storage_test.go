package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/shareplate/internal/apperror"
)

var (
	pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	gifHead = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00")
)

func fixedClock() time.Time { return time.UnixMilli(1700000000123) }

func fixedID() string { return "cv0abc" }

func TestObjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fresh bread.png", "1700000000123-cv0abc-fresh-bread.png"},
		{"../../etc/passwd.png", "1700000000123-cv0abc-passwd.png"},
		{"dir/sub/photo.jpg", "1700000000123-cv0abc-photo.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName(fixedClock(), fixedID(), tt.in))
		})
	}
}

func TestImageValidate(t *testing.T) {
	tests := []struct {
		name     string
		img      Image
		wantType string
		wantErr  bool
	}{
		{name: "png", img: Image{Filename: "a.png", Size: 100, Head: pngHead}, wantType: "image/png"},
		{name: "gif upper ext", img: Image{Filename: "a.GIF", Size: 100, Head: gifHead}, wantType: "image/gif"},
		{name: "bad extension", img: Image{Filename: "a.exe", Size: 100, Head: pngHead}, wantErr: true},
		{name: "too large", img: Image{Filename: "a.png", Size: MaxImageBytes + 1, Head: pngHead}, wantErr: true},
		{name: "text with image name", img: Image{Filename: "a.jpg", Size: 5, Head: []byte("hello")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.img.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperror.ErrValidation), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got)
		})
	}
}

func TestLocalStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	store.now = fixedClock
	store.newID = fixedID

	name, err := store.Save(context.Background(), "my photo.png", "image/png", bytes.NewReader(pngHead))
	require.NoError(t, err)
	assert.Equal(t, "1700000000123-cv0abc-my-photo.png", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, pngHead, data)

	// A colliding name must not overwrite.
	_, err = store.Save(context.Background(), "my photo.png", "image/png", bytes.NewReader(pngHead))
	assert.Error(t, err)
}

func TestLocalStore_SameNameSameMillisecond(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store.now = fixedClock

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		name, err := store.Save(context.Background(), "image.png", "image/png", bytes.NewReader(pngHead))
		require.NoError(t, err, "save %d", i)
		require.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 200)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Save(t *testing.T) {
	client := &fakeS3{}
	store := NewS3StoreWithClient(client, "shareplate-images", "https://cdn.example.com/")
	store.now = fixedClock
	store.newID = fixedID

	ref, err := store.Save(context.Background(), "rice.jpg", "image/jpeg", strings.NewReader("jpegdata"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/food/1700000000123-cv0abc-rice.jpg", ref)
	assert.Equal(t, "shareplate-images", aws.ToString(client.input.Bucket))
	assert.Equal(t, "food/1700000000123-cv0abc-rice.jpg", aws.ToString(client.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(client.input.ContentType))
	assert.Equal(t, "jpegdata", string(client.body))
}

func TestS3Store_SameNameGetsDistinctKeys(t *testing.T) {
	client := &fakeS3{}
	store := NewS3StoreWithClient(client, "bucket", "")
	store.now = fixedClock

	first, err := store.Save(context.Background(), "image.jpg", "image/jpeg", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "image.jpg", "image/jpeg", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestS3Store_SaveWithoutPublicURL(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{}, "bucket", "")
	store.now = fixedClock
	store.newID = fixedID

	ref, err := store.Save(context.Background(), "x.png", "image/png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "food/1700000000123-cv0abc-x.png", ref)
}

func TestS3Store_SaveError(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{err: errors.New("access denied")}, "bucket", "")

	_, err := store.Save(context.Background(), "x.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}
