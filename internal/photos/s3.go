package photos

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedContentType is returned for uploads that are not images.
var ErrUnsupportedContentType = errors.New("unsupported photo content type")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// Presigner is the part of s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload describes a presigned PUT the client performs itself. Reference
// is the opaque photoReference stored on cleaning assignments.
type Upload struct {
	URL       string              `json:"uploadUrl"`
	Method    string              `json:"method"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Reference string              `json:"photoReference"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// S3Store hands out presigned upload URLs for cleaning photos.
type S3Store struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

func NewS3Store(presigner Presigner, bucket string, ttl time.Duration) *S3Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Store{presigner: presigner, bucket: bucket, ttl: ttl, now: time.Now}
}

// NewS3Client builds a client from the default AWS credential chain. A
// non-empty endpoint selects an S3 compatible service with path-style URLs.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// PresignUpload returns a URL the user can PUT the photo to.
func (s *S3Store) PresignUpload(ctx context.Context, userName, contentType string) (*Upload, error) {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	key := ObjectKey(userName, uuid.NewString(), ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &Upload{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   req.SignedHeader,
		Reference: key,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}, nil
}

// ObjectKey builds photos/{user-slug}/{id}{ext}.
func ObjectKey(userName, id, ext string) string {
	return path.Join("photos", slug(userName), id+ext)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "anonymous"
	}
	return out
}
