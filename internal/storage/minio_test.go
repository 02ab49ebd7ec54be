package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		file        string
		contentType string
		wantErr     bool
	}{
		{file: "logo.PNG", contentType: "image/png"},
		{file: "photo.jpeg", contentType: "image/jpeg"},
		{file: "anim.webp", contentType: "image/webp"},
		{file: "script.sh", wantErr: true},
		{file: "noext", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			name, ct, err := ObjectName("p1", tt.file)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("err = %v, want ErrUnsupported", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ObjectName: %v", err)
			}
			if ct != tt.contentType || !strings.HasPrefix(name, "products/p1/") {
				t.Fatalf("name=%s contentType=%s", name, ct)
			}
		})
	}
}

func TestSignedURL(t *testing.T) {
	client, err := minio.New("minio.local:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("minio.New: %v", err)
	}
	images := NewImages(client, "product-images", "minio.local:9000", false)

	signed, err := images.SignedURL(context.Background(), images.PublicURL("products/p1/a.png"), time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(signed, "/product-images/products/p1/a.png?") || !strings.Contains(signed, "X-Amz-Signature=") {
		t.Fatalf("signed = %s", signed)
	}
}

func TestNilImagesUnavailable(t *testing.T) {
	images := NewImages(nil, "b", "e", false)
	if _, err := images.Upload(context.Background(), "p", "a.png", strings.NewReader("x"), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
