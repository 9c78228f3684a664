package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

// SDFContentType is the MIME type of uploaded SD files.
const SDFContentType = "chemical/x-mdl-sdfile"

var (
	ErrUploadFailed   = errors.New(errors.ErrCodeStorageError, "upload failed")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// UploadResult describes a stored artifact.
type UploadResult struct {
	Bucket       string
	ObjectKey    string
	ETag         string
	Size         int64
	Location     string
	PresignedURL string
	UploadedAt   time.Time
}

// ArtifactUploader stores run output files under <prefix>/<run id>/.
type ArtifactUploader struct {
	client *MinIOClient
	logger logging.Logger
	now    func() time.Time
}

// NewArtifactUploader returns an uploader bound to client.
func NewArtifactUploader(client *MinIOClient, logger logging.Logger) *ArtifactUploader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ArtifactUploader{client: client, logger: logger, now: time.Now}
}

// ObjectKey returns the key a file named fileName of runID is stored under.
func (u *ArtifactUploader) ObjectKey(runID, fileName string) string {
	prefix := strings.Trim(u.client.config.ObjectPrefix, "/")
	return path.Join(prefix, runID, fileName)
}

// UploadRun uploads the local file at filePath as an artifact of runID and
// returns a presigned download link.
func (u *ArtifactUploader) UploadRun(ctx context.Context, runID, filePath string) (*UploadResult, error) {
	if u.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if runID == "" || filePath == "" {
		return nil, ErrInvalidRequest.WithDetail("run id and file path are required")
	}
	st, err := os.Stat(filePath)
	if err != nil {
		return nil, ErrInvalidRequest.WithCause(err).WithDetail(filePath)
	}
	if st.IsDir() {
		return nil, ErrInvalidRequest.WithDetail(filePath + " is a directory")
	}

	bucket := u.client.Bucket()
	key := u.ObjectKey(runID, filepath.Base(filePath))
	info, err := u.client.client.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType:  SDFContentType,
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return nil, ErrUploadFailed.WithCause(err).WithDetail(bucket + "/" + key)
	}

	res := &UploadResult{
		Bucket:     bucket,
		ObjectKey:  key,
		ETag:       info.ETag,
		Size:       info.Size,
		Location:   info.Location,
		UploadedAt: u.now(),
	}
	if link, err := u.client.client.PresignedGetObject(ctx, bucket, key, u.client.config.PresignExpiry, nil); err != nil {
		u.logger.Warn("failed to presign artifact", logging.String("key", key), logging.Err(err))
	} else {
		res.PresignedURL = link.String()
	}

	u.logger.Info("artifact uploaded",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return res, nil
}

// Exists reports whether the artifact fileName of runID is stored.
func (u *ArtifactUploader) Exists(ctx context.Context, runID, fileName string) (bool, error) {
	_, err := u.client.client.StatObject(ctx, u.client.Bucket(), u.ObjectKey(runID, fileName), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat artifact")
}
