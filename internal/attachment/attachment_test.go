package attachment

import (
	"testing"
	"time"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name  string
		store *GCSStore
		want  string
	}{
		{
			name:  "gcs default",
			store: &GCSStore{bucket: "inbox"},
			want:  "https://storage.googleapis.com/inbox/attachments/2024/07/media-1.jpg",
		},
		{
			name:  "cdn domain",
			store: &GCSStore{bucket: "inbox", cdnDomain: "media.example.com"},
			want:  "https://media.example.com/attachments/2024/07/media-1.jpg",
		},
		{
			name:  "emulator",
			store: &GCSStore{bucket: "inbox", emulatorHost: "http://fake-gcs:4443"},
			want:  "http://fake-gcs:4443/storage/v1/b/inbox/o/attachments%2F2024%2F07%2Fmedia-1.jpg?alt=media",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.store.PublicURL("/attachments/2024/07/media-1.jpg")
			if got != tt.want {
				t.Fatalf("PublicURL: want=%q got=%q", tt.want, got)
			}
		})
	}
}

func TestKey(t *testing.T) {
	at := time.Date(2024, 2, 29, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))
	got := Key("media-9", "pdf", at)
	if got != "attachments/2024/03/media-9.pdf" {
		t.Fatalf("Key = %q", got)
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "jpg",
		"audio/ogg; codecs=opus":   "ogg",
		"application/pdf":          "pdf",
		"video/mp4":                "mp4",
		"application/x-unknown-xx": "bin",
		"":                         "bin",
		"not a mime":               "bin",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}
