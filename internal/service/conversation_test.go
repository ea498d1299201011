package service

import (
	"testing"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
)

func TestConversationLifecycle(t *testing.T) {
	h := newHarness(t)
	in := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	id := in.ConversationID

	h.advance(time.Minute)
	conv, err := h.conversations.Claim(t.Context(), id, "agent-7")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !conv.ClaimedBy("agent-7") {
		t.Errorf("after claim: %+v", conv)
	}
	if !conv.UpdatedAt.Equal(tuesday10.Add(time.Minute)) {
		t.Errorf("claim did not bump updated_at: %s", conv.UpdatedAt)
	}

	conv, err = h.conversations.MarkRead(t.Context(), id)
	if err != nil || conv.UnreadCount != 0 {
		t.Fatalf("MarkRead: %v unread=%d", err, conv.UnreadCount)
	}

	conv, err = h.conversations.UpdateNotes(t.Context(), id, "VIP, refund issued")
	if err != nil || conv.InternalNotes != "VIP, refund issued" {
		t.Fatalf("UpdateNotes: %v %+v", err, conv)
	}

	conv, err = h.conversations.Unclaim(t.Context(), id)
	if err != nil || conv.Status != model.StatusNew || conv.AgentID != nil {
		t.Fatalf("Unclaim: %v %+v", err, conv)
	}

	conv, err = h.conversations.Resolve(t.Context(), id)
	if err != nil || conv.Status != model.StatusResolved {
		t.Fatalf("Resolve: %v %+v", err, conv)
	}

	if _, err := h.conversations.Claim(t.Context(), "missing", "agent-7"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Claim(missing) err = %v, want not_found", err)
	}
}

func TestReopenConflictsWithOpenConversation(t *testing.T) {
	h := newHarness(t)
	first := h.deliver(t, textPayload("wamid.1", phone, "hello"))
	if _, err := h.conversations.Resolve(t.Context(), first.ConversationID); err != nil {
		t.Fatal(err)
	}
	h.deliver(t, textPayload("wamid.2", phone, "new issue"))

	_, err := h.conversations.Claim(t.Context(), first.ConversationID, "agent-7")
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestListViews(t *testing.T) {
	h := newHarness(t)
	a := h.deliver(t, textPayload("wamid.a", "15550000001", "a"))
	h.advance(time.Minute)
	b := h.deliver(t, textPayload("wamid.b", "15550000002", "b"))
	h.advance(time.Minute)
	c := h.deliver(t, textPayload("wamid.c", "15550000003", "c"))
	h.advance(time.Minute)

	if _, err := h.conversations.Claim(t.Context(), a.ConversationID, "agent-7"); err != nil {
		t.Fatal(err)
	}
	h.advance(time.Minute)
	if _, err := h.conversations.Claim(t.Context(), b.ConversationID, "agent-8"); err != nil {
		t.Fatal(err)
	}
	h.advance(time.Minute)
	if _, err := h.conversations.Resolve(t.Context(), c.ConversationID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		view  model.View
		agent string
		want  []string
	}{
		{model.ViewMine, "agent-7", []string{a.ConversationID}},
		{model.ViewMine, "agent-9", nil},
		{model.ViewNew, "agent-7", nil},
		{model.ViewResolved, "agent-7", []string{c.ConversationID}},
		{model.ViewAll, "agent-7", []string{c.ConversationID, b.ConversationID, a.ConversationID}},
	}
	for _, tt := range tests {
		t.Run(string(tt.view)+"/"+tt.agent, func(t *testing.T) {
			resp, err := h.conversations.List(t.Context(), tt.view, tt.agent, 0, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(resp.Conversations) != len(tt.want) || resp.Total != int64(len(tt.want)) {
				t.Fatalf("got %d (total %d), want %d", len(resp.Conversations), resp.Total, len(tt.want))
			}
			for i, id := range tt.want {
				if resp.Conversations[i].ID != id {
					t.Errorf("[%d] = %s, want %s", i, resp.Conversations[i].ID, id)
				}
			}
		})
	}

	page, err := h.conversations.List(t.Context(), model.ViewAll, "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Conversations) != 2 || !page.HasMore || page.Total != 3 {
		t.Errorf("page = %d has_more=%v total=%d", len(page.Conversations), page.HasMore, page.Total)
	}
}
