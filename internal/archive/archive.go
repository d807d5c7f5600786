package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/haojie06/imagen-http/internal/logger"
	"github.com/haojie06/imagen-http/internal/model"
)

type Config struct {
	Bucket string `mapstructure:"bucket"`

	// Endpoint of an S3 compatible service, empty for AWS.
	Endpoint string `mapstructure:"endpoint"`

	Region string `mapstructure:"region"`

	AccessKey string `mapstructure:"accessKey"`

	SecretKey string `mapstructure:"secretKey"`

	Prefix string `mapstructure:"prefix"`

	Workers int `mapstructure:"workers"`

	QueueSize int `mapstructure:"queueSize"`
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archiver uploads generated images in the background. Uploads never block
// or fail a request, a full queue drops the upload.
type Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	jobs     chan model.Generation
	wg       sync.WaitGroup
	once     sync.Once
}

func New(uploader Uploader, cfg Config) *Archiver {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	a := &Archiver{
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		jobs:     make(chan model.Generation, queueSize),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for generation := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		key, err := a.Upload(ctx, generation)
		cancel()
		if err != nil {
			logger.Warnf("failed to archive generation %s: %s", generation.ID, err)
			continue
		}
		logger.Debugf("generation %s archived to s3://%s/%s", generation.ID, a.bucket, key)
	}
}

// Submit reports false when the queue is full.
func (a *Archiver) Submit(generation model.Generation) bool {
	select {
	case a.jobs <- generation:
		return true
	default:
		logger.Warnf("archive queue full, dropping generation %s", generation.ID)
		return false
	}
}

func (a *Archiver) Upload(ctx context.Context, generation model.Generation) (string, error) {
	data, err := base64.StdEncoding.DecodeString(generation.Image.B64JSON)
	if err != nil {
		return "", fmt.Errorf("image is not valid base64: %w", err)
	}
	contentType := http.DetectContentType(data)
	key := ObjectKey(a.prefix, generation, contentType)

	_, err = a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"prompt":         metadataValue(generation.Prompt, 1024),
			"iterative-mode": fmt.Sprintf("%t", generation.IterativeMode),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// Close drains the queue and waits for in-flight uploads.
func (a *Archiver) Close() {
	a.once.Do(func() {
		close(a.jobs)
	})
	a.wg.Wait()
}

func ObjectKey(prefix string, generation model.Generation, contentType string) string {
	ext := "png"
	switch contentType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	createdAt := time.Unix(generation.CreatedAt, 0).UTC()
	return fmt.Sprintf("%s%s/%s.%s", prefix, createdAt.Format("2006/01/02"), generation.ID, ext)
}

// metadataValue query-escapes s so it is a valid header value and cuts it to
// at most limit bytes without splitting a rune or an escape sequence.
func metadataValue(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		part := url.QueryEscape(string(r))
		if b.Len()+len(part) > limit {
			break
		}
		b.WriteString(part)
	}
	return b.String()
}
