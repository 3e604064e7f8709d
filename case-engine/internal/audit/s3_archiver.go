package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ILLUVRSE/Venture/case-engine/internal/canonical"
)

// Uploader is satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver stores each event as canonical JSON under
//
//	<prefix>/cases/YYYY/MM/DD/<caseID>/<eventID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader Uploader
}

// NewS3Archiver picks up region and credentials from the standard AWS environment.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3ArchiverWithUploader(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix), nil
}

func NewS3ArchiverWithUploader(u Uploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: u}
}

func (s *S3Archiver) ObjectKey(ev Event) string {
	year, month, day := ev.Ts.UTC().Date()
	return path.Join(s.prefix, "cases",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		ev.CaseID.String(),
		ev.ID+".json",
	)
}

func (s *S3Archiver) Publish(ctx context.Context, ev Event) error {
	body, err := canonical.Marshal(ev)
	if err != nil {
		return fmt.Errorf("s3 canonicalize event %s: %w", ev.ID, err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.ObjectKey(ev)),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload event %s: %w", ev.ID, err)
	}
	return nil
}
