package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/internal/store/storetest"
)

var t0 = time.Date(2024, 7, 30, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func seedCustomer(t *testing.T, s *store.Store, id, phone string) *model.Customer {
	t.Helper()
	c := &model.Customer{ID: id, Phone: phone, Name: strPtr("Ana")}
	if err := s.Customers.Create(t.Context(), c); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func seedConversation(t *testing.T, s *store.Store, id, customerID, firstID string) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{
		ID:                 id,
		CustomerID:         customerID,
		Status:             model.StatusNew,
		LastMessagePreview: "hi",
		UnreadCount:        1,
		CreatedAt:          t0,
		UpdatedAt:          t0,
	}
	first := &model.Message{ID: firstID, Text: "hi", Sender: model.SenderCustomer, Timestamp: t0}
	if err := s.Conversations.Create(t.Context(), conv, first); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestCustomerCreateAndLookup(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "15551234567")

	got, err := s.Customers.GetByPhone(t.Context(), "15551234567")
	if err != nil {
		t.Fatalf("GetByPhone: %v", err)
	}
	if got.ID != "cus-1" || got.DisplayName() != "Ana" || got.IsBlocked {
		t.Errorf("customer = %+v", got)
	}

	if _, err := s.Customers.GetByPhone(t.Context(), "000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByPhone(unknown) err = %v, want ErrNotFound", err)
	}

	dup := &model.Customer{ID: "cus-2", Phone: "15551234567"}
	if err := s.Customers.Create(t.Context(), dup); !errors.Is(err, store.ErrDuplicatePhone) {
		t.Errorf("Create(dup) err = %v, want ErrDuplicatePhone", err)
	}
}

func TestCustomerUpdates(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "15551234567")

	c, err := s.Customers.UpdateName(t.Context(), "cus-1", "Ana María", t0)
	if err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	if c.DisplayName() != "Ana María" {
		t.Errorf("name = %q", c.DisplayName())
	}

	c, err = s.Customers.SetBlocked(t.Context(), "cus-1", true, t0)
	if err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}
	if !c.IsBlocked {
		t.Error("expected blocked customer")
	}

	if _, err := s.Customers.SetBlocked(t.Context(), "nope", true, t0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetBlocked(unknown) err = %v", err)
	}
}

func TestCreateConversationWithFirstMessage(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")
	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")

	conv, err := s.Conversations.Get(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.MessageCount != 1 || conv.UnreadCount != 1 || conv.Status != model.StatusNew {
		t.Errorf("conversation = %+v", conv)
	}

	msgs, err := s.Conversations.Messages(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Seq != 1 || msgs[0].ConversationID != "conv-1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestOnlyOneOpenConversationPerCustomer(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")
	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")

	second := &model.Conversation{ID: "conv-2", CustomerID: "cus-1", Status: model.StatusNew}
	first := &model.Message{ID: "wamid.2", Sender: model.SenderCustomer, Timestamp: t0}
	err := s.Conversations.Create(t.Context(), second, first)
	if !errors.Is(err, store.ErrOpenConversationExists) {
		t.Fatalf("Create err = %v, want ErrOpenConversationExists", err)
	}
	if exists, _ := s.Conversations.MessageExists(t.Context(), "wamid.2"); exists {
		t.Error("rejected conversation left its first message behind")
	}

	if _, err := s.Conversations.UpdateFields(t.Context(), "conv-1", t0.Add(time.Minute), map[string]interface{}{
		"status": model.StatusResolved,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := s.Conversations.Create(t.Context(), second, first); err != nil {
		t.Fatalf("Create after resolve: %v", err)
	}
}

func TestLatestOpen(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")

	got, err := s.Conversations.LatestOpen(t.Context(), "cus-1")
	if err != nil || got != nil {
		t.Fatalf("LatestOpen with none = %v, %v", got, err)
	}

	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")
	if _, err := s.Conversations.UpdateFields(t.Context(), "conv-1", t0.Add(time.Minute), map[string]interface{}{
		"status": model.StatusResolved,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got, _ := s.Conversations.LatestOpen(t.Context(), "cus-1"); got != nil {
		t.Fatalf("resolved conversation returned as open: %+v", got)
	}

	seedConversation(t, s, "conv-2", "cus-1", "wamid.2")
	got, err = s.Conversations.LatestOpen(t.Context(), "cus-1")
	if err != nil {
		t.Fatalf("LatestOpen: %v", err)
	}
	if got == nil || got.ID != "conv-2" {
		t.Fatalf("LatestOpen = %+v, want conv-2", got)
	}
}

func TestCountForCustomer(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")
	seedCustomer(t, s, "cus-2", "1666")

	if n, err := s.Conversations.CountForCustomer(t.Context(), "cus-1"); err != nil || n != 0 {
		t.Fatalf("CountForCustomer with none = %d, %v", n, err)
	}

	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")
	if _, err := s.Conversations.UpdateFields(t.Context(), "conv-1", t0.Add(time.Minute), map[string]interface{}{
		"status": model.StatusResolved,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	seedConversation(t, s, "conv-2", "cus-1", "wamid.2")
	seedConversation(t, s, "conv-3", "cus-2", "wamid.3")

	n, err := s.Conversations.CountForCustomer(t.Context(), "cus-1")
	if err != nil || n != 2 {
		t.Errorf("CountForCustomer = %d, %v, want 2 including resolved", n, err)
	}
}

func TestAppend(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")
	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")

	if _, err := s.Conversations.UpdateFields(t.Context(), "conv-1", t0, map[string]interface{}{
		"status":   model.StatusClaimed,
		"agent_id": "agent-7",
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	at := t0.Add(5 * time.Minute)
	msg := &model.Message{
		ID:        "wamid.2",
		Sender:    model.SenderCustomer,
		Timestamp: at,
		Attachment: &model.Attachment{
			URL:      "https://cdn.example/a.jpg",
			FileName: "a.jpg",
			MimeType: "image/jpeg",
		},
	}
	conv, err := s.Conversations.Append(t.Context(), "conv-1", msg, store.AppendUpdate{
		Preview:         "📷 Image",
		IncrementUnread: true,
		Status:          model.StatusNew,
		At:              at,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if conv.MessageCount != 2 || conv.UnreadCount != 2 || conv.LastMessagePreview != "📷 Image" {
		t.Errorf("conversation = %+v", conv)
	}
	if conv.Status != model.StatusNew || conv.AgentID != nil {
		t.Errorf("status = %s agent = %v, want new and unassigned", conv.Status, conv.AgentID)
	}
	if !conv.UpdatedAt.Equal(at) {
		t.Errorf("updated_at = %s, want %s", conv.UpdatedAt, at)
	}
	if msg.Seq != 2 {
		t.Errorf("seq = %d, want 2", msg.Seq)
	}

	msgs, _ := s.Conversations.Messages(t.Context(), "conv-1")
	if len(msgs) != 2 || msgs[1].ID != "wamid.2" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].Attachment == nil || msgs[1].Attachment.FileName != "a.jpg" {
		t.Errorf("attachment = %+v", msgs[1].Attachment)
	}
	if msgs[0].Attachment != nil {
		t.Errorf("text message has attachment %+v", msgs[0].Attachment)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1555")
	seedConversation(t, s, "conv-1", "cus-1", "wamid.1")

	dup := &model.Message{ID: "wamid.1", Text: "hi", Sender: model.SenderCustomer, Timestamp: t0}
	_, err := s.Conversations.Append(t.Context(), "conv-1", dup, store.AppendUpdate{
		Preview:         "hi",
		IncrementUnread: true,
		Status:          model.StatusNew,
		At:              t0.Add(time.Minute),
	})
	if !errors.Is(err, store.ErrDuplicateMessage) {
		t.Fatalf("Append err = %v, want ErrDuplicateMessage", err)
	}

	conv, _ := s.Conversations.Get(t.Context(), "conv-1")
	if conv.MessageCount != 1 || conv.UnreadCount != 1 || !conv.UpdatedAt.Equal(t0) {
		t.Errorf("duplicate append changed the conversation: %+v", conv)
	}
}

func TestAppendUnknownConversation(t *testing.T) {
	s := storetest.New(t)
	msg := &model.Message{ID: "m", Sender: model.SenderAgent, Timestamp: t0}
	if _, err := s.Conversations.Append(t.Context(), "missing", msg, store.AppendUpdate{At: t0}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := storetest.New(t)
	seedCustomer(t, s, "cus-1", "1551")
	seedCustomer(t, s, "cus-2", "1552")
	seedCustomer(t, s, "cus-3", "1553")
	seedConversation(t, s, "conv-1", "cus-1", "m1")
	seedConversation(t, s, "conv-2", "cus-2", "m2")
	seedConversation(t, s, "conv-3", "cus-3", "m3")

	s.Conversations.UpdateFields(t.Context(), "conv-2", t0.Add(time.Minute), map[string]interface{}{
		"status": model.StatusClaimed, "agent_id": "agent-7",
	})
	s.Conversations.UpdateFields(t.Context(), "conv-3", t0.Add(2*time.Minute), map[string]interface{}{
		"status": model.StatusResolved,
	})

	all, total, err := s.Conversations.List(t.Context(), store.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].ID != "conv-3" {
		t.Errorf("all = %d/%d first %s, want newest first", len(all), total, all[0].ID)
	}

	mine, _, _ := s.Conversations.List(t.Context(), store.ListFilter{
		Statuses: []model.Status{model.StatusClaimed},
		AgentID:  "agent-7",
	})
	if len(mine) != 1 || mine[0].ID != "conv-2" {
		t.Errorf("mine = %+v", mine)
	}

	page, total, _ := s.Conversations.List(t.Context(), store.ListFilter{Limit: 1, Offset: 1})
	if total != 3 || len(page) != 1 || page[0].ID != "conv-2" {
		t.Errorf("page = %+v total %d", page, total)
	}
}

func TestSettings(t *testing.T) {
	s := storetest.New(t)

	got, err := s.Settings.Get(t.Context())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BusinessHours.Start != "09:00" || got.AwayMessage.Enabled {
		t.Errorf("defaults = %+v", got)
	}

	got.AwayMessage = model.AwayMessage{Enabled: true, Text: "We're closed"}
	got.WelcomeMessage.Buttons = []model.ReplyButton{{ID: "sales", Title: "Sales"}}
	if err := s.Settings.Save(t.Context(), got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got.AwayMessage.Text = "Back soon"
	if err := s.Settings.Save(t.Context(), got); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	reloaded, err := s.Settings.Get(t.Context())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reloaded.AwayMessage.Enabled || reloaded.AwayMessage.Text != "Back soon" {
		t.Errorf("away = %+v", reloaded.AwayMessage)
	}
	if len(reloaded.WelcomeMessage.Buttons) != 1 || reloaded.WelcomeMessage.Buttons[0].Title != "Sales" {
		t.Errorf("buttons = %+v", reloaded.WelcomeMessage.Buttons)
	}
}
