package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// ConversationRepo reads and writes conversations and their message log.
type ConversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewConversationRepo creates a conversation repository.
func NewConversationRepo(db *gorm.DB, log *logger.Logger) *ConversationRepo {
	return &ConversationRepo{db: db, log: log.With(zap.String("repo", "ConversationRepo"))}
}

// AppendUpdate describes the conversation fields changed with an append.
type AppendUpdate struct {
	Preview         string
	IncrementUnread bool
	// Status, when set, replaces the current status. StatusNew also clears
	// the assigned agent.
	Status model.Status
	At     time.Time
}

// ListFilter selects conversations for a dashboard view.
type ListFilter struct {
	Statuses []model.Status
	AgentID  string
	Limit    int
	Offset   int
}

// Get returns the conversation with id, or ErrNotFound.
func (r *ConversationRepo) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("store.GetConversation", err)
	}
	return &c, nil
}

// LatestOpen returns the most recently updated non-resolved conversation
// for the customer, or nil when there is none.
func (r *ConversationRepo) LatestOpen(ctx context.Context, customerID string) (*model.Conversation, error) {
	var c model.Conversation
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status <> ?", customerID, model.StatusResolved).
		Order("updated_at DESC").
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, apperr.Storage("store.LatestOpenConversation", err)
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

// CountForCustomer returns how many conversations the customer has, in any
// status.
func (r *ConversationRepo) CountForCustomer(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("customer_id = ?", customerID).Count(&n).Error
	if err != nil {
		return 0, apperr.Storage("store.CountConversations", err)
	}
	return n, nil
}

// Create inserts conv together with its first message in one transaction.
// MessageCount is set from first. It returns ErrOpenConversationExists when
// the customer already has an open conversation and ErrDuplicateMessage
// when first was stored before.
func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation, first *model.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if first != nil {
			conv.MessageCount = 1
		}
		if err := tx.Create(conv).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrOpenConversationExists
			}
			return err
		}
		if first == nil {
			return nil
		}

		first.ConversationID = conv.ID
		first.Seq = 1
		return insertMessage(tx, first)
	})
	return classify("store.CreateConversation", err)
}

// Append adds msg to the end of the conversation's log and applies upd to
// the conversation row in the same transaction. The row update takes the
// row lock before the message sequence number is assigned, so concurrent
// appenders are serialized and none is lost. It returns the updated
// conversation, ErrNotFound, or ErrDuplicateMessage when msg.ID is already
// stored (nothing is changed in that case).
func (r *ConversationRepo) Append(ctx context.Context, conversationID string, msg *model.Message, upd AppendUpdate) (*model.Conversation, error) {
	var out model.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"message_count":        gorm.Expr("message_count + 1"),
			"last_message_preview": upd.Preview,
			"updated_at":           upd.At,
		}
		if upd.IncrementUnread {
			updates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		if upd.Status != "" {
			updates["status"] = upd.Status
			if upd.Status == model.StatusNew {
				updates["agent_id"] = nil
			}
		}

		res := tx.Model(&model.Conversation{}).Where("id = ?", conversationID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("id = ?", conversationID).Take(&out).Error; err != nil {
			return err
		}

		msg.ConversationID = conversationID
		msg.Seq = out.MessageCount
		return insertMessage(tx, msg)
	})
	if err != nil {
		return nil, classify("store.AppendMessage", err)
	}
	return &out, nil
}

// UpdateFields applies updates to the conversation and bumps updated_at to at.
func (r *ConversationRepo) UpdateFields(ctx context.Context, id string, at time.Time, updates map[string]interface{}) (*model.Conversation, error) {
	fields := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["updated_at"] = at

	res := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrOpenConversationExists
		}
		return nil, apperr.Storage("store.UpdateConversation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// Messages returns the conversation's log in append order.
func (r *ConversationRepo) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out []model.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, apperr.Storage("store.ListMessages", err)
	}
	return out, nil
}

// MessageExists reports whether a message with id was stored.
func (r *ConversationRepo) MessageExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, apperr.Storage("store.MessageExists", err)
	}
	return n > 0, nil
}

// List returns conversations matching f, most recently updated first, and
// the total number of matches.
func (r *ConversationRepo) List(ctx context.Context, f ListFilter) ([]model.Conversation, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Conversation{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("store.CountConversations", err)
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	out := []model.Conversation{}
	if err := q.Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, 0, apperr.Storage("store.ListConversations", err)
	}
	return out, total, nil
}

func insertMessage(tx *gorm.DB, msg *model.Message) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

// classify passes store sentinels through and tags anything else as a
// storage failure.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateMessage), errors.Is(err, ErrOpenConversationExists):
		return err
	}
	return apperr.Storage(op, err)
}
