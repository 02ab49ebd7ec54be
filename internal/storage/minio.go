package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

var (
	ErrUnavailable  = errors.New("image storage unavailable")
	ErrUnsupported  = errors.New("unsupported image type")
	allowedImageExt = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".gif":  "image/gif",
	}
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 << 20

// Images stores product images in a MinIO bucket.
type Images struct {
	client   *minio.Client
	bucket   string
	endpoint string
	secure   bool
}

// NewImages returns nil when client is nil.
func NewImages(client *minio.Client, bucket, endpoint string, secure bool) *Images {
	if client == nil {
		return nil
	}
	return &Images{client: client, bucket: bucket, endpoint: endpoint, secure: secure}
}

// ObjectName builds the key an upload is stored under.
func ObjectName(productID, filename string) (string, string, error) {
	ext := strings.ToLower(path.Ext(filename))
	contentType, ok := allowedImageExt[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return fmt.Sprintf("products/%s/%s%s", productID, uuid.NewString(), ext), contentType, nil
}

// Upload stores an image and returns its public URL.
func (i *Images) Upload(ctx context.Context, productID, filename string, r io.Reader, size int64) (string, error) {
	if i == nil {
		return "", ErrUnavailable
	}
	if size > MaxImageSize {
		return "", fmt.Errorf("%w: file larger than %d bytes", ErrUnsupported, MaxImageSize)
	}

	object, contentType, err := ObjectName(productID, filename)
	if err != nil {
		return "", err
	}

	_, err = i.client.PutObject(ctx, i.bucket, object, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	log.Printf("🪣 Uploaded %s", object)
	return i.PublicURL(object), nil
}

func (i *Images) PublicURL(object string) string {
	scheme := "http"
	if i.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, i.endpoint, i.bucket, object)
}

// SignedURL returns a time-limited download URL for an object or one of our public URLs.
func (i *Images) SignedURL(ctx context.Context, objectOrURL string, ttl time.Duration) (string, error) {
	if i == nil {
		return "", ErrUnavailable
	}
	prefix := i.PublicURL("")
	key := strings.TrimPrefix(objectOrURL, prefix)

	u, err := i.client.PresignedGetObject(ctx, i.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Remove deletes an object referenced by one of our public URLs.
func (i *Images) Remove(ctx context.Context, publicURL string) error {
	if i == nil {
		return ErrUnavailable
	}
	key := strings.TrimPrefix(publicURL, i.PublicURL(""))
	return i.client.RemoveObject(ctx, i.bucket, key, minio.RemoveObjectOptions{})
}
