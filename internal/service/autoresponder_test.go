package service

import (
	"testing"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
)

func enableAway(s *model.AppSettings) {
	s.AwayMessage = model.AwayMessage{Enabled: true, Text: "We're closed, back Monday."}
	s.BusinessHours = model.BusinessHours{Start: "09:00", End: "17:00", Days: []int{1, 2, 3, 4, 5}}
}

func TestAwayMessageOutsideBusinessHours(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, enableAway)
	h.setNow(saturday10)

	res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if !res.AutoReply.AwaySent || res.AutoReply.WelcomeSent {
		t.Fatalf("AutoReply = %+v, want away only", res.AutoReply)
	}

	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].Kind != "text" || sent[0].Text != "We're closed, back Monday." || sent[0].To != phone {
		t.Fatalf("sent = %+v, want one away text", sent)
	}

	conv := h.conversation(t, res.ConversationID)
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Sender != model.SenderCustomer {
		t.Errorf("first message sender = %q", conv.Messages[0].Sender)
	}
	away := conv.Messages[1]
	if away.Sender != model.SenderAgent || away.AgentID == nil || *away.AgentID != model.SystemAgentID {
		t.Errorf("away message = %+v, want system agent message", away)
	}
	if away.Text != "We're closed, back Monday." {
		t.Errorf("away text = %q", away.Text)
	}
	// The automated reply does not count as unread customer input.
	if conv.UnreadCount != 1 || conv.Status != model.StatusNew {
		t.Errorf("unread = %d status = %q", conv.UnreadCount, conv.Status)
	}
}

func TestNoAwayMessageDuringBusinessHours(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, enableAway)
	h.setNow(tuesday10)

	res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if res.AutoReply.AwaySent {
		t.Fatal("away message sent during business hours")
	}
	if sent := h.sender.messages(); len(sent) != 0 {
		t.Fatalf("sent = %+v, want nothing", sent)
	}
	if conv := h.conversation(t, res.ConversationID); len(conv.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(conv.Messages))
	}
}

func TestAwayMessageOnlyForNewConversations(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, enableAway)
	h.setNow(saturday10)

	h.deliver(t, textPayload("wamid.1", phone, "hello"))
	res := h.deliver(t, textPayload("wamid.2", phone, "hello again"))
	if res.AutoReply.AwaySent {
		t.Fatal("away message sent on append")
	}
	if sent := h.sender.messages(); len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
}

func TestWelcomeSkipsAwayMessage(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		enableAway(s)
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})
	h.setNow(saturday10)

	res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if !res.AutoReply.WelcomeSent || res.AutoReply.AwaySent {
		t.Fatalf("AutoReply = %+v, want welcome only", res.AutoReply)
	}
	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].Text != "Welcome!" {
		t.Fatalf("sent = %+v", sent)
	}
	conv := h.conversation(t, res.ConversationID)
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "Welcome!" {
		t.Fatalf("messages = %+v", conv.Messages)
	}
}

func TestWelcomeOnlyForFirstContact(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})

	first := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if _, err := h.conversations.Resolve(t.Context(), first.ConversationID); err != nil {
		t.Fatal(err)
	}
	second := h.deliver(t, textPayload("wamid.2", phone, "back again"))
	if second.Outcome != OutcomeCreated {
		t.Fatalf("Outcome = %q, want created", second.Outcome)
	}
	if second.AutoReply.WelcomeSent {
		t.Fatal("welcome sent to a returning customer")
	}
	if sent := h.sender.messages(); len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
}

func TestWelcomeSentWhenFailedDeliveryIsRetried(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})
	h.media.err = apperr.MediaFetch("whatsapp.GetMedia", errProvider)

	p := payload(phone, "Ana", whatsapp.Message{
		ID:    "wamid.img",
		Type:  "image",
		Image: &whatsapp.MediaContent{ID: "media-9", MimeType: "image/jpeg"},
	})
	if _, err := h.ingest.HandleDelivery(t.Context(), p); err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	if n := h.countRows(t, &model.Customer{}); n != 1 {
		t.Fatalf("customers after failed attempt = %d, want 1", n)
	}

	h.media.err = nil
	res := h.deliver(t, p)
	if res.Outcome != OutcomeCreated || !res.AutoReply.WelcomeSent {
		t.Fatalf("retry = %q %+v, want created with welcome", res.Outcome, res.AutoReply)
	}
	if sent := h.sender.messages(); len(sent) != 1 || sent[0].Text != "Welcome!" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestNoWelcomeAfterAgentStartedConversation(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})

	started, err := h.agent.StartConversation(t.Context(), "agent-7", &model.StartConversationRequest{Phone: phone, Text: "Your order shipped"})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if _, err := h.conversations.Resolve(t.Context(), started.Conversation.ID); err != nil {
		t.Fatal(err)
	}

	res := h.deliver(t, textPayload("wamid.1", phone, "thanks"))
	if res.Outcome != OutcomeCreated {
		t.Fatalf("Outcome = %q, want created", res.Outcome)
	}
	if res.AutoReply.WelcomeSent {
		t.Fatal("welcome sent to a customer an agent already contacted")
	}
}

func TestWelcomeVariants(t *testing.T) {
	tests := []struct {
		name     string
		welcome  model.WelcomeMessage
		wantKind string
		wantText string
	}{
		{
			name:     "template",
			welcome:  model.WelcomeMessage{Enabled: true, Template: "hello_world"},
			wantKind: "template",
			wantText: "Template: hello_world",
		},
		{
			name: "buttons",
			welcome: model.WelcomeMessage{Enabled: true, Text: "How can we help?", Buttons: []model.ReplyButton{
				{ID: "sales", Title: "Sales"},
				{ID: "support", Title: "Support"},
			}},
			wantKind: "buttons",
			wantText: "How can we help?",
		},
		{
			name:     "text",
			welcome:  model.WelcomeMessage{Enabled: true, Text: "Hi there"},
			wantKind: "text",
			wantText: "Hi there",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.saveSettings(t, func(s *model.AppSettings) { s.WelcomeMessage = tt.welcome })

			res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
			sent := h.sender.messages()
			if len(sent) != 1 || sent[0].Kind != tt.wantKind {
				t.Fatalf("sent = %+v, want one %s", sent, tt.wantKind)
			}
			if tt.wantKind == "template" && sent[0].Language != "en_US" {
				t.Errorf("template language = %q", sent[0].Language)
			}
			conv := h.conversation(t, res.ConversationID)
			if len(conv.Messages) != 2 || conv.Messages[1].Text != tt.wantText {
				t.Errorf("logged welcome = %+v", conv.Messages)
			}
		})
	}
}

func TestAutoReplySendFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		enableAway(s)
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})
	h.setNow(saturday10)
	h.sender.err = errProvider

	res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if res.Outcome != OutcomeCreated {
		t.Fatalf("Outcome = %q, want created", res.Outcome)
	}
	if res.AutoReply.WelcomeSent || res.AutoReply.AwaySent {
		t.Errorf("AutoReply = %+v, want nothing sent", res.AutoReply)
	}
	if conv := h.conversation(t, res.ConversationID); len(conv.Messages) != 1 {
		t.Errorf("messages = %d, want only the customer message", len(conv.Messages))
	}
}

func TestInvalidBusinessHoursTreatedAsOpen(t *testing.T) {
	h := newHarness(t)
	// Saved directly to bypass validation.
	h.saveSettings(t, func(s *model.AppSettings) {
		enableAway(s)
		s.BusinessHours.Start = "nine"
	})
	h.setNow(saturday10)

	res := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if res.AutoReply.AwaySent {
		t.Fatal("away message sent with unparseable hours")
	}
}
