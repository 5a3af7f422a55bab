package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// NewS3Client builds a client for an S3-compatible endpoint (MinIO in
// development) with static credentials.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.RootUser,
			c.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores a copy of every outgoing message as an .eml object and
// then hands it to next. The key comes from the message ID, so a retried
// delivery overwrites its own copy. Archive failures are logged and do not
// stop delivery.
type S3Archive struct {
	next   Notifier
	s3     objectPutter
	bucket string
	from   string
	logger logging.Logger
	now    func() time.Time
}

func NewS3Archive(next Notifier, client objectPutter, bucket, from string, l logging.Logger) *S3Archive {
	return &S3Archive{
		next:   next,
		s3:     client,
		bucket: bucket,
		from:   from,
		logger: l.With("module", "mail-archive"),
		now:    time.Now,
	}
}

// ArchiveKey names the object for a message queued at t with the given id.
func ArchiveKey(t time.Time, id string) string {
	return fmt.Sprintf("mail/%04d/%02d/%02d/%s.eml", t.Year(), t.Month(), t.Day(), id)
}

func (a *S3Archive) Notify(ctx context.Context, m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.QueuedAt.IsZero() {
		m.QueuedAt = a.now()
	}
	if err := a.archive(ctx, m); err != nil {
		a.logger.Warn(ctx, "archive failed", "kind", string(m.Kind), "error", err)
	}
	return a.next.Notify(ctx, m)
}

func (a *S3Archive) archive(ctx context.Context, m Message) error {
	msg, err := Compose(a.from, m)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	key := ArchiveKey(m.QueuedAt.UTC(), m.ID)
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("message/rfc822"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	a.logger.Debug(ctx, "message archived", "key", key)
	return nil
}
