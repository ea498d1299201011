package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/internal/store/storetest"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

var (
	tuesday10  = time.Date(2024, 7, 30, 10, 0, 0, 0, time.UTC)
	saturday10 = time.Date(2024, 8, 3, 10, 0, 0, 0, time.UTC)
)

type sentMessage struct {
	Kind     string
	To       string
	Text     string
	URL      string
	MimeType string
	Template string
	Language string
	Buttons  []model.ReplyButton
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) record(m sentMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "wamid.out." + strconv.Itoa(len(f.sent)), nil
}

func (f *fakeSender) SendText(_ context.Context, to, text string) (string, error) {
	return f.record(sentMessage{Kind: "text", To: to, Text: text})
}

func (f *fakeSender) SendAttachment(_ context.Context, to, url, mimeType, caption, _ string) (string, error) {
	return f.record(sentMessage{Kind: "attachment", To: to, URL: url, MimeType: mimeType, Text: caption})
}

func (f *fakeSender) SendTemplate(_ context.Context, to, name, language string) (string, error) {
	return f.record(sentMessage{Kind: "template", To: to, Template: name, Language: language})
}

func (f *fakeSender) SendInteractiveButtons(_ context.Context, to, body string, buttons []model.ReplyButton) (string, error) {
	return f.record(sentMessage{Kind: "buttons", To: to, Text: body, Buttons: buttons})
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeMedia struct {
	mimeType string
	data     []byte
	err      error
}

func (f *fakeMedia) GetMedia(_ context.Context, id string) (*whatsapp.MediaResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &whatsapp.MediaResponse{ID: id, URL: "https://lookaside.test/" + id, MimeType: f.mimeType}, nil
}

func (f *fakeMedia) Download(_ context.Context, _ string) ([]byte, error) {
	return f.data, nil
}

type fakeAttachments struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeAttachments) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.ChangeEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e *model.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Table == table {
			n++
		}
	}
	return n
}

type fakeTracker struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeTracker) Seen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id], nil
}

func (f *fakeTracker) Mark(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[id] = true
	return nil
}

// harness wires the services over an in-memory store and fakes.
type harness struct {
	store     *store.Store
	sender    *fakeSender
	media     *fakeMedia
	uploads   *fakeAttachments
	publisher *fakePublisher
	tracker   *fakeTracker

	customers     *CustomerService
	conversations *ConversationService
	responder     *AutoResponder
	ingest        *IngestService
	agent         *AgentService
	settings      *SettingsService

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     storetest.New(t),
		sender:    &fakeSender{},
		media:     &fakeMedia{mimeType: "image/jpeg", data: []byte("jpeg")},
		uploads:   &fakeAttachments{},
		publisher: &fakePublisher{},
		tracker:   &fakeTracker{},
		now:       tuesday10,
	}
	log := logger.NewNop()

	h.customers = NewCustomerService(h.store.Customers, h.publisher, log)
	h.conversations = NewConversationService(h.store.Conversations, h.store.Customers, h.publisher, log)
	media := NewMediaService(h.media, h.uploads, log)
	h.responder = NewAutoResponder(h.sender, h.store.Settings, h.conversations, "en_US", log)
	h.ingest = NewIngestService(IngestConfig{
		Customers:     h.customers,
		Conversations: h.conversations,
		Media:         media,
		Responder:     h.responder,
		Sender:        h.sender,
		Tracker:       h.tracker,
		BlockedNotice: "blocked",
	}, log)
	h.agent = NewAgentService(h.conversations, h.customers, h.sender, log)
	h.settings = NewSettingsService(h.store.Settings, log)

	clock := h.clock
	h.customers.now, h.customers.events.now = clock, clock
	h.conversations.now, h.conversations.events.now = clock, clock
	media.now = clock
	h.responder.now = clock
	h.ingest.now = clock
	h.agent.now = clock
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = t
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) saveSettings(t *testing.T, mutate func(*model.AppSettings)) {
	t.Helper()
	s := model.DefaultSettings()
	mutate(s)
	if err := h.store.Settings.Save(t.Context(), s); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func (h *harness) deliver(t *testing.T, p *whatsapp.WebhookPayload) *Result {
	t.Helper()
	res, err := h.ingest.HandleDelivery(t.Context(), p)
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	return res
}

func (h *harness) conversation(t *testing.T, id string) *model.Conversation {
	t.Helper()
	conv, err := h.conversations.Get(t.Context(), id)
	if err != nil {
		t.Fatalf("get conversation %s: %v", id, err)
	}
	return conv
}

func (h *harness) countRows(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	if err := h.store.DB.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func payload(from, name string, msg whatsapp.Message) *whatsapp.WebhookPayload {
	msg.From = from
	if msg.Timestamp == "" {
		msg.Timestamp = "1722333600"
	}
	return &whatsapp.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []whatsapp.Entry{{
			ID: "waba-1",
			Changes: []whatsapp.Change{{
				Field: "messages",
				Value: whatsapp.ChangeValue{
					MessagingProduct: "whatsapp",
					Contacts:         []whatsapp.Contact{{Profile: whatsapp.ContactProfile{Name: name}, WaID: from}},
					Messages:         []whatsapp.Message{msg},
				},
			}},
		}},
	}
}

func textPayload(id, from, body string) *whatsapp.WebhookPayload {
	return payload(from, "Ana", whatsapp.Message{
		ID:   id,
		Type: "text",
		Text: &whatsapp.TextContent{Body: body},
	})
}

var errProvider = errors.New("provider unavailable")
