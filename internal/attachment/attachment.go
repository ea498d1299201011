// Package attachment uploads retrieved media to durable object storage.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// GCSStore writes attachments to a Google Cloud Storage bucket.
type GCSStore struct {
	client       *storage.Client
	bucket       string
	cdnDomain    string
	emulatorHost string
	log          *logger.Logger
}

// Config selects the bucket and how public URLs are formed.
type Config struct {
	Bucket       string
	CDNDomain    string
	EmulatorHost string
}

// NewGCSStore connects to GCS, or to the emulator when EmulatorHost is set.
func NewGCSStore(ctx context.Context, cfg Config, log *logger.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, apperr.Config("attachment.NewGCSStore", fmt.Errorf("bucket is required"))
	}

	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	var opts []option.ClientOption
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperr.Config("attachment.NewGCSStore", fmt.Errorf("failed to create storage client: %w", err))
	}

	s := &GCSStore{
		client:       client,
		bucket:       cfg.Bucket,
		cdnDomain:    strings.TrimSpace(cfg.CDNDomain),
		emulatorHost: emulator,
		log:          log.Component("attachment"),
	}
	s.log.Info("Attachment storage initialized",
		zap.String("bucket", s.bucket),
		zap.String("cdn_domain", s.cdnDomain),
		zap.String("emulator_host", s.emulatorHost),
	)
	return s, nil
}

// Upload writes data under key and returns its public URL.
func (s *GCSStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", apperr.Storage("attachment.Upload", fmt.Errorf("failed to write data to GCS: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", apperr.Storage("attachment.Upload", fmt.Errorf("failed to close GCS writer: %w", err))
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the URL a dashboard can load key from.
func (s *GCSStore) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	}
	if s.emulatorHost != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(key))
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Key returns the object key for a media handle received at t.
func Key(handle, ext string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("attachments/%04d/%02d/%s.%s", t.Year(), int(t.Month()), handle, ext)
}

// extensions maps the MIME types WhatsApp delivers to file extensions.
var extensions = map[string]string{
	"image/jpeg":                    "jpg",
	"image/png":                     "png",
	"image/webp":                    "webp",
	"image/gif":                     "gif",
	"video/mp4":                     "mp4",
	"video/3gpp":                    "3gp",
	"audio/ogg":                     "ogg",
	"audio/mpeg":                    "mp3",
	"audio/mp4":                     "m4a",
	"audio/aac":                     "aac",
	"audio/amr":                     "amr",
	"application/pdf":               "pdf",
	"text/plain":                    "txt",
	"application/msword":            "doc",
	"application/vnd.ms-excel":      "xls",
	"application/vnd.ms-powerpoint": "ppt",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
}

// Extension returns a file extension, without the dot, for a MIME type.
// Parameters such as "; codecs=opus" are ignored. Unknown types map to "bin".
func Extension(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "bin"
	}
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}
