package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/attachment"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// MediaService moves provider media into the attachment store.
type MediaService struct {
	source MediaSource
	store  AttachmentStore
	log    *logger.Logger
	now    Clock
}

// NewMediaService creates a media service.
func NewMediaService(source MediaSource, store AttachmentStore, log *logger.Logger) *MediaService {
	return &MediaService{
		source: source,
		store:  store,
		log:    log.Component("media"),
		now:    utcNow,
	}
}

// Resolve fetches the media behind ref, uploads it and returns the
// attachment to store on the message.
func (s *MediaService) Resolve(ctx context.Context, ref *MediaRef) (_ *model.Attachment, err error) {
	ctx, span := tracer.Start(ctx, "media.resolve")
	span.SetAttributes(attribute.String("media.handle", ref.Handle))
	start := time.Now()
	defer func() {
		metrics.RecordMediaFetch(time.Since(start).Seconds(), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	media, err := s.source.GetMedia(ctx, ref.Handle)
	if err != nil {
		return nil, err
	}
	data, err := s.source.Download(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = ref.MimeType
	}
	ext := attachment.Extension(mimeType)

	url, err := s.store.Upload(ctx, attachment.Key(ref.Handle, ext, s.now()), mimeType, data)
	if err != nil {
		return nil, err
	}

	fileName := ref.FileName
	if fileName == "" {
		fileName = ref.Handle + "." + ext
	}

	s.log.Debug("Media stored",
		zap.String("handle", ref.Handle),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(data)),
	)
	return &model.Attachment{URL: url, FileName: fileName, MimeType: mimeType}, nil
}
