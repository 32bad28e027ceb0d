package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObject struct {
	bucket      string
	content     []byte
	contentType string
}

type fakeStorage struct {
	objects map[string]memoryObject
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string]memoryObject{}}
}

func (s *fakeStorage) Upload(_ context.Context, bucket, objectName string, content []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.objects[objectName] = memoryObject{bucket: bucket, content: content, contentType: contentType}
	return objectName, nil
}

func (s *fakeStorage) GetSignedURL(_ context.Context, bucket, objectName string, expires time.Duration) (string, error) {
	return "https://storage.example.com/" + bucket + "/" + objectName + "?expires=" + expires.String(), nil
}

func (s *fakeStorage) StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, bucket, objectName, content, contentType)
}

func TestExportCrawled(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	svc := newFakeStorage()
	clock := newFakeClock()
	exp := NewExporter(store, svc, "exports", time.Hour, clock)

	records := []CreatorRecord{{ID: "1", Handle: "alice", DisplayName: "Alice", Profiles: map[string]any{"a": "b"}}}
	require.NoError(t, store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyCrawledCreators: records}))

	res, err := exp.ExportCrawled(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tiktok_crawled_creators_2024_05_01_080000.json", res.Object)
	assert.Equal(t, "https://storage.example.com/exports/tiktok_crawled_creators_2024_05_01_080000.json?expires=1h0m0s", res.URL)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, clock.Now().Add(time.Hour), res.ExpiresAt)

	obj := svc.objects[res.Object]
	assert.Equal(t, "exports", obj.bucket)
	assert.Equal(t, "application/json", obj.contentType)
	var got []CreatorRecord
	require.NoError(t, json.Unmarshal(obj.content, &got))
	assert.Equal(t, records, got)
}

func TestExportNotFound(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	svc := newFakeStorage()
	exp := NewExporter(store, svc, "exports", time.Hour, newFakeClock())

	require.NoError(t, store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyNotFoundCreators: []string{"bob", "carol"}}))

	res, err := exp.ExportNotFound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tiktok_not_found_creators_2024_05_01_080000.txt", res.Object)
	assert.Equal(t, "bob\ncarol", string(svc.objects[res.Object].content))
	assert.Equal(t, "text/plain", svc.objects[res.Object].contentType)
}

func TestExportNothing(t *testing.T) {
	exp := NewExporter(kvstore.NewMemoryStore(), newFakeStorage(), "exports", time.Hour, newFakeClock())

	_, err := exp.ExportCrawled(context.Background())
	assert.ErrorIs(t, err, ErrNothingToExport)
	_, err = exp.ExportNotFound(context.Background())
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestExportUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	svc := newFakeStorage()
	svc.err = errors.New("bucket gone")
	exp := NewExporter(store, svc, "exports", time.Hour, newFakeClock())
	require.NoError(t, store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyNotFoundCreators: []string{"bob"}}))

	_, err := exp.ExportNotFound(ctx)
	assert.ErrorContains(t, err, "bucket gone")
}
