package storage

import (
	"context"
	"iter"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage serves s3://bucket/key URIs.
type S3Storage struct {
	api S3API
}

// NewS3Storage wraps an existing S3 client.
func NewS3Storage(api S3API) *S3Storage {
	return &S3Storage{api: api}
}

// S3Options configures the default S3 client.
type S3Options struct {
	Region   string
	Endpoint string
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// A custom endpoint switches to path-style addressing for MinIO-like servers.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "storage: load aws config")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// List pages through ListObjectsV2, forwarding the continuation token until
// the response is no longer truncated.
func (s *S3Storage) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		bucket, keyPrefix, err := SplitS3URI(prefix)
		if err != nil {
			yield("", err)
			return
		}

		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(keyPrefix),
		}
		for page := 1; ; page++ {
			out, err := s.api.ListObjectsV2(ctx, input)
			if err != nil {
				yield("", eris.Wrapf(err, "storage: list s3://%s/%s", bucket, keyPrefix))
				return
			}
			zap.L().Debug("storage: s3 list page",
				zap.String("bucket", bucket),
				zap.String("prefix", keyPrefix),
				zap.Int("page", page),
				zap.Int("objects", len(out.Contents)),
			)
			for _, obj := range out.Contents {
				key := aws.ToString(obj.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if !yield("s3://"+bucket+"/"+key, nil) {
					return
				}
			}
			if !aws.ToBool(out.IsTruncated) {
				return
			}
			input.ContinuationToken = out.NextContinuationToken
		}
	}
}

// Fetch downloads uri to localPath unless localPath already exists.
func (s *S3Storage) Fetch(ctx context.Context, uri, dst string) error {
	if exists(dst) {
		return nil
	}
	bucket, key, err := SplitS3URI(uri)
	if err != nil {
		return err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return eris.Wrapf(err, "storage: get %s", uri)
	}
	defer out.Body.Close() //nolint:errcheck

	n, err := writeLocal(dst, out.Body)
	if err != nil {
		return err
	}
	zap.L().Debug("storage: fetched s3 object", zap.String("uri", uri), zap.String("dst", dst), zap.Int64("bytes", n))
	return nil
}

// Put uploads a local file to uri with the given content type.
func (s *S3Storage) Put(ctx context.Context, src, uri, contentType string) error {
	bucket, key, err := SplitS3URI(uri)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "storage: open %s", src)
	}
	defer f.Close() //nolint:errcheck

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return eris.Wrapf(err, "storage: put %s", uri)
	}
	zap.L().Info("storage: uploaded object", zap.String("uri", uri))
	return nil
}
