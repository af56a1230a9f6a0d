// Package reports archives job results as JSON documents, either in an
// S3-compatible bucket or in a local directory.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cateringhub/backoffice/internal/filex"
	"github.com/cateringhub/backoffice/internal/server/jobs"
)

// Key returns the archive path of a result: job-reports/<kind>/<yyyy>/<mm>/<dd>/<run id>.json.
func Key(res jobs.Result) string {
	d := res.Started.UTC()
	return fmt.Sprintf("job-reports/%s/%04d/%02d/%02d/%s.json", res.Kind, d.Year(), d.Month(), d.Day(), res.RunID)
}

func encode(res jobs.Result) ([]byte, error) {
	return json.MarshalIndent(res, "", "  ")
}

// ObjectPutter is the part of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads each result to a bucket.
type S3Archive struct {
	client ObjectPutter
	bucket string
}

func NewS3Archive(client ObjectPutter, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// Record implements jobs.Sink. Skipped runs are not archived.
func (a *S3Archive) Record(ctx context.Context, res jobs.Result) error {
	if res.Status == jobs.StatusSkipped {
		return nil
	}
	body, err := encode(res)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(res)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", Key(res), err)
	}
	return nil
}

// S3Settings holds connection settings for an S3-compatible store such as MinIO.
type S3Settings struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// seams for tests
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a client with static credentials. A non-empty
// BaseEndpoint switches to path-style addressing for MinIO.
func NewS3Client(ctx context.Context, st S3Settings) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(st.Region)}
	if st.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			st.AccessKey, // MINIO_ROOT_USER
			st.SecretKey, // MINIO_ROOT_PASSWORD
			"",
		)))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if st.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(st.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// DirArchive writes each result to a file below a root directory.
type DirArchive struct {
	root string
}

// NewDirArchive creates root if needed.
func NewDirArchive(root string) (*DirArchive, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &DirArchive{root: abs}, nil
}

// Record implements jobs.Sink. Skipped runs are not archived.
func (a *DirArchive) Record(_ context.Context, res jobs.Result) error {
	if res.Status == jobs.StatusSkipped {
		return nil
	}
	body, err := encode(res)
	if err != nil {
		return err
	}
	path := filepath.Join(a.root, filepath.FromSlash(Key(res)))
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, body, 0o640)
}
