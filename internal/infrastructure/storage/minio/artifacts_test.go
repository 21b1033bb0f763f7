package minio

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellabio/concentra/internal/config"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

type fakeObjectAPI struct {
	bucketExists bool
	bucketErr    error
	makeErr      error
	putErr       error
	statErr      error

	madeBucket bool
	putBucket  string
	putObject  string
	putData    []byte
	putOpts    miniogo.PutObjectOptions
}

func (f *fakeObjectAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketErr
}

func (f *fakeObjectAPI) MakeBucket(_ context.Context, _ string, _ miniogo.MakeBucketOptions) error {
	if f.makeErr == nil {
		f.madeBucket = true
	}
	return f.makeErr
}

func (f *fakeObjectAPI) PutObject(_ context.Context, bucket, object string, reader *bytes.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	if f.putErr != nil {
		return miniogo.UploadInfo{}, f.putErr
	}
	f.putBucket = bucket
	f.putObject = object
	f.putOpts = opts
	f.putData = make([]byte, size)
	if _, err := reader.Read(f.putData); err != nil {
		return miniogo.UploadInfo{}, err
	}
	return miniogo.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjectAPI) StatObject(_ context.Context, bucket, object string, _ miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
	if f.statErr != nil {
		return miniogo.ObjectInfo{}, f.statErr
	}
	return miniogo.ObjectInfo{Key: object}, nil
}

func testStore(api objectAPI) *ArtifactStore {
	cfg := config.StorageConfig{
		Enabled: true,
		Bucket:  "concentra-artifacts",
		Prefix:  "runs",
	}
	return newArtifactStore(api, cfg, logging.NewNopLogger(), nil)
}

func TestObjectName(t *testing.T) {
	store := testStore(&fakeObjectAPI{})
	assert.Equal(t, "runs/abc-123.tsv", store.ObjectName(common.RunID("abc-123"), "tsv"))

	store.cfg.Prefix = ""
	assert.Equal(t, "abc-123.json", store.ObjectName(common.RunID("abc-123"), "json"))
}

func TestUpload(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true}
	store := testStore(api)

	data := []byte("gene\tcategory\nIL2\tcytokine\n")
	object, err := store.Upload(context.Background(), common.RunID("run-1"), "tsv", data)
	require.NoError(t, err)

	assert.Equal(t, "runs/run-1.tsv", object)
	assert.Equal(t, "concentra-artifacts", api.putBucket)
	assert.Equal(t, data, api.putData)
	assert.Equal(t, "text/tab-separated-values", api.putOpts.ContentType)
	assert.False(t, api.madeBucket)
}

func TestUpload_CreatesMissingBucket(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: false}
	store := testStore(api)

	_, err := store.Upload(context.Background(), common.RunID("run-1"), "csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.True(t, api.madeBucket)
	assert.Equal(t, "text/csv", api.putOpts.ContentType)
}

func TestUpload_PutFailure(t *testing.T) {
	api := &fakeObjectAPI{bucketExists: true, putErr: fmt.Errorf("connection reset")}
	store := testStore(api)

	_, err := store.Upload(context.Background(), common.RunID("run-1"), "tsv", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeArtifactFailed))
}

func TestUpload_BucketCheckFailure(t *testing.T) {
	api := &fakeObjectAPI{bucketErr: fmt.Errorf("access denied")}
	store := testStore(api)

	_, err := store.Upload(context.Background(), common.RunID("run-1"), "tsv", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeArtifactFailed))
	assert.Empty(t, api.putObject)
}

func TestExists(t *testing.T) {
	api := &fakeObjectAPI{}
	store := testStore(api)

	ok, err := store.Exists(context.Background(), common.RunID("run-1"), "tsv")
	require.NoError(t, err)
	assert.True(t, ok)

	api.statErr = miniogo.ErrorResponse{Code: "NoSuchKey"}
	ok, err = store.Exists(context.Background(), common.RunID("run-1"), "tsv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("json"))
	assert.Equal(t, "text/csv", contentType("csv"))
	assert.Equal(t, "text/tab-separated-values", contentType("tsv"))
}
