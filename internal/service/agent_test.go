package service

import (
	"testing"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
)

func TestSendReply(t *testing.T) {
	h := newHarness(t)
	in := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	h.advance(time.Minute)

	resp, err := h.agent.SendReply(t.Context(), in.ConversationID, "agent-7", &model.SendMessageRequest{Text: "Hi Ana, checking now."})
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if resp.ProviderMessageID == "" || resp.SendError != "" {
		t.Errorf("resp = %+v", resp)
	}

	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].To != phone || sent[0].Text != "Hi Ana, checking now." {
		t.Fatalf("sent = %+v", sent)
	}

	conv := h.conversation(t, in.ConversationID)
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}
	reply := conv.Messages[1]
	if reply.Sender != model.SenderAgent || reply.AgentID == nil || *reply.AgentID != "agent-7" {
		t.Errorf("reply = %+v", reply)
	}
	// Agent replies change neither the unread count nor the triage state.
	if conv.UnreadCount != 1 || conv.Status != model.StatusNew {
		t.Errorf("unread = %d status = %q", conv.UnreadCount, conv.Status)
	}
	if !conv.UpdatedAt.Equal(tuesday10.Add(time.Minute)) {
		t.Errorf("updated_at = %s, want bumped", conv.UpdatedAt)
	}
}

func TestSendReplyFailureKeepsMessage(t *testing.T) {
	h := newHarness(t)
	in := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	h.sender.err = errProvider

	resp, err := h.agent.SendReply(t.Context(), in.ConversationID, "agent-7", &model.SendMessageRequest{Text: "are you there?"})
	if !apperr.IsKind(err, apperr.KindSend) {
		t.Fatalf("err = %v, want send error", err)
	}
	if resp == nil || resp.SendError == "" || resp.Message == nil {
		t.Fatalf("resp = %+v, want persisted message with send error", resp)
	}

	conv := h.conversation(t, in.ConversationID)
	if len(conv.Messages) != 2 || conv.Messages[1].ID != resp.Message.ID {
		t.Errorf("reply not persisted: %+v", conv.Messages)
	}
}

func TestSendReplyWithAttachment(t *testing.T) {
	h := newHarness(t)
	in := h.deliver(t, textPayload("wamid.1", phone, "hello"))

	_, err := h.agent.SendReply(t.Context(), in.ConversationID, "agent-7", &model.SendMessageRequest{
		Text:          "your receipt",
		AttachmentURL: "https://cdn.test/receipt.pdf",
		MimeType:      "application/pdf",
		FileName:      "receipt.pdf",
	})
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}

	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].Kind != "attachment" || sent[0].URL != "https://cdn.test/receipt.pdf" {
		t.Fatalf("sent = %+v", sent)
	}
	conv := h.conversation(t, in.ConversationID)
	if conv.LastMessagePreview != "📄 receipt.pdf: your receipt" {
		t.Errorf("preview = %q", conv.LastMessagePreview)
	}
	if att := conv.Messages[1].Attachment; att == nil || att.FileName != "receipt.pdf" {
		t.Errorf("attachment = %+v", att)
	}
}

func TestSendReplyValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.agent.SendReply(t.Context(), "missing", "agent-7", &model.SendMessageRequest{})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty reply err = %v, want validation", err)
	}
	_, err = h.agent.SendReply(t.Context(), "missing", "agent-7", &model.SendMessageRequest{Text: "hi"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown conversation err = %v, want not_found", err)
	}
}

func TestStartConversation(t *testing.T) {
	h := newHarness(t)
	h.saveSettings(t, func(s *model.AppSettings) {
		s.WelcomeMessage = model.WelcomeMessage{Enabled: true, Text: "Welcome!"}
	})

	resp, err := h.agent.StartConversation(t.Context(), "agent-7", &model.StartConversationRequest{
		Phone: "+1 (555) 123-4567",
		Name:  "Ana",
		Text:  "Your order shipped.",
	})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	conv := h.conversation(t, resp.Conversation.ID)
	if conv.Status != model.StatusClaimed || !conv.ClaimedBy("agent-7") {
		t.Errorf("status = %q agent = %v, want claimed by agent-7", conv.Status, conv.AgentID)
	}
	if conv.UnreadCount != 0 || len(conv.Messages) != 1 {
		t.Errorf("unread = %d messages = %d", conv.UnreadCount, len(conv.Messages))
	}
	if conv.Customer == nil || conv.Customer.Phone != phone {
		t.Errorf("customer = %+v", conv.Customer)
	}
	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].Text != "Your order shipped." {
		t.Fatalf("sent = %+v, want only the agent message", sent)
	}

	// The customer's reply lands in the same conversation and gets no welcome.
	res := h.deliver(t, textPayload("wamid.1", phone, "thanks"))
	if res.Outcome != OutcomeAppended || res.ConversationID != conv.ID {
		t.Errorf("reply delivery = %+v", res)
	}
}

func TestStartConversationReusesOpenConversation(t *testing.T) {
	h := newHarness(t)
	in := h.deliver(t, textPayload("wamid.1", phone, "hello"))

	resp, err := h.agent.StartConversation(t.Context(), "agent-7", &model.StartConversationRequest{Phone: phone, Text: "following up"})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if resp.Conversation.ID != in.ConversationID {
		t.Fatalf("started %s, want reuse of %s", resp.Conversation.ID, in.ConversationID)
	}
	if n := h.countRows(t, &model.Conversation{}); n != 1 {
		t.Errorf("conversations = %d, want 1", n)
	}
}

func TestStartConversationRejectsBlocked(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.customers.Resolve(t.Context(), phone, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.customers.SetBlocked(t.Context(), phone, true); err != nil {
		t.Fatal(err)
	}

	_, err := h.agent.StartConversation(t.Context(), "agent-7", &model.StartConversationRequest{Phone: phone, Text: "hi"})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if len(h.sender.messages()) != 0 {
		t.Error("message sent to blocked customer")
	}
}
