package delivery

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"camlapse/internal/lapse"
)

// s3Uploader is the subset of *manager.Uploader used by S3Channel.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Channel uploads videos to <bucket>/<prefix>/<name>.
type S3Channel struct {
	bucket   string
	prefix   string
	uploader s3Uploader
}

var _ lapse.DeliveryChannel = (*S3Channel)(nil)

// NewS3Channel builds an uploader from the default AWS credential chain, or
// from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY when both are set.
func NewS3Channel(ctx context.Context, bucket, prefix, region string) (*S3Channel, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 delivery requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("AWS_SESSION_TOKEN")),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg), func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
	})
	return newS3ChannelWithUploader(bucket, prefix, uploader), nil
}

func newS3ChannelWithUploader(bucket, prefix string, u s3Uploader) *S3Channel {
	return &S3Channel{bucket: bucket, prefix: prefix, uploader: u}
}

func (c *S3Channel) Name() string { return "s3" }

func (c *S3Channel) Deliver(ctx context.Context, videoPath string) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("opening video: %w", err)
	}
	defer f.Close()

	key := c.objectKey(videoPath)
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := contentType(videoPath); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

func (c *S3Channel) objectKey(videoPath string) string {
	return path.Join(c.prefix, filepath.Base(videoPath))
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".age":  "application/octet-stream",
}

func contentType(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}
