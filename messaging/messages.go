// Package messaging stores encrypted direct messages grouped into threads.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"geochat/config"
	"geochat/database"
	"geochat/locks"
	"geochat/models"
	"geochat/utils"
	"geochat/vault"
)

// Notifier is told about message lifecycle events after they are committed.
// Implementations must not block.
type Notifier interface {
	MessageSent(ctx context.Context, m models.Message)
	MessageDeleted(ctx context.Context, m models.Message)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) MessageSent(context.Context, models.Message)    {}
func (NopNotifier) MessageDeleted(context.Context, models.Message) {}

type MessageStore struct {
	db       *database.DatabaseService
	cipher   *vault.Cipher
	threads  *ThreadRegistry
	locks    locks.Locker
	notifier Notifier
	logger   *slog.Logger
}

func NewMessageStore(db *database.DatabaseService, cipher *vault.Cipher, threads *ThreadRegistry, locker locks.Locker, notifier Notifier, logger *slog.Logger) *MessageStore {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageStore{
		db:       db,
		cipher:   cipher,
		threads:  threads,
		locks:    locker,
		notifier: notifier,
		logger:   logger.With("component", "messaging"),
	}
}

func validateSend(senderID, receiverID int64, plaintext string) error {
	if senderID <= 0 || receiverID <= 0 {
		return fmt.Errorf("%w: sender and receiver are required", models.ErrPrecondition)
	}
	if !utf8.ValidString(plaintext) {
		return fmt.Errorf("%w: message body must be valid UTF-8 text", models.ErrPrecondition)
	}
	if len(plaintext) > config.MaxMessageLen {
		return fmt.Errorf("%w: message body exceeds %d bytes", models.ErrPrecondition, config.MaxMessageLen)
	}
	return nil
}

// Send encrypts plaintext and appends it to threadID. A missing thread id is a
// precondition failure and nothing is written.
func (s *MessageStore) Send(ctx context.Context, senderID, receiverID int64, plaintext string, threadID int64) (models.Message, error) {
	if threadID <= 0 {
		return models.Message{}, fmt.Errorf("%w: thread id is required", models.ErrPrecondition)
	}
	if err := validateSend(senderID, receiverID, plaintext); err != nil {
		return models.Message{}, err
	}
	return s.send(ctx, senderID, receiverID, plaintext, threadID)
}

// SendDirect sends to receiverID in the pair's thread, allocating the thread on
// first contact. The pair lock is held until the row is written, so concurrent
// first messages always land in the same thread.
func (s *MessageStore) SendDirect(ctx context.Context, senderID, receiverID int64, plaintext string) (models.Message, error) {
	if err := validateSend(senderID, receiverID, plaintext); err != nil {
		return models.Message{}, err
	}

	unlock, err := s.locks.Lock(ctx, locks.PairKey(senderID, receiverID))
	if err != nil {
		return models.Message{}, err
	}
	defer unlock()

	threadID, created, err := s.threads.resolveOrAllocate(ctx, senderID, receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if created {
		s.logger.Info("Allocated thread", "thread_id", threadID, "sender_id", senderID, "receiver_id", receiverID)
	}
	return s.send(ctx, senderID, receiverID, plaintext, threadID)
}

func (s *MessageStore) send(ctx context.Context, senderID, receiverID int64, plaintext string, threadID int64) (models.Message, error) {
	unlock, err := s.locks.Lock(ctx, locks.ThreadKey(threadID))
	if err != nil {
		return models.Message{}, err
	}
	defer unlock()

	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return models.Message{}, fmt.Errorf("encrypt message: %w", err)
	}
	stored, err := s.db.InsertMessage(ctx, models.StoredMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		ThreadID:   threadID,
		Ciphertext: ciphertext,
		Timestamp:  utils.GetSQLTime(),
	})
	if err != nil {
		s.logger.Error("Failed to insert message", "thread_id", threadID, "error", err)
		return models.Message{}, err
	}

	msg := toMessage(stored)
	msg.Body = plaintext
	s.notifier.MessageSent(ctx, msg)
	return msg, nil
}

// Get returns one decrypted message. A decryption failure is reported on the message's Err.
func (s *MessageStore) Get(ctx context.Context, messageID int64) (models.Message, error) {
	stored, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	return s.decrypt(stored), nil
}

// ListThreadMessages returns the messages of threadID exchanged between a and b,
// oldest first. Rows that fail to decrypt carry Err and leave the rest intact.
func (s *MessageStore) ListThreadMessages(ctx context.Context, threadID, a, b int64) ([]models.Message, error) {
	if threadID <= 0 {
		return []models.Message{}, nil
	}
	rows, err := s.db.GetThreadMessages(ctx, threadID, a, b)
	if err != nil {
		return nil, err
	}
	return s.decryptAll(rows), nil
}

// ListRecentForUser returns the messages of threadID that userID sent or received, newest first.
func (s *MessageStore) ListRecentForUser(ctx context.Context, userID, threadID int64) ([]models.Message, error) {
	if threadID <= 0 {
		return []models.Message{}, nil
	}
	rows, err := s.db.GetRecentMessages(ctx, userID, threadID, 0)
	if err != nil {
		return nil, err
	}
	return s.decryptAll(rows), nil
}

// Delete removes exactly one message. An unknown id yields models.ErrNotFound.
// On success the notifier is told so views can drop the message.
func (s *MessageStore) Delete(ctx context.Context, messageID int64) error {
	stored, err := s.db.DeleteMessage(ctx, messageID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("Failed to delete message", "message_id", messageID, "error", err)
		}
		return err
	}
	s.notifier.MessageDeleted(ctx, toMessage(stored))
	return nil
}

func (s *MessageStore) decryptAll(rows []models.StoredMessage) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, s.decrypt(row))
	}
	return msgs
}

func (s *MessageStore) decrypt(row models.StoredMessage) models.Message {
	msg := toMessage(row)
	body, err := s.cipher.Decrypt(row.Ciphertext)
	if err != nil {
		s.logger.Warn("Failed to decrypt message", "message_id", row.ID, "thread_id", row.ThreadID, "error", err)
		msg.Err = err
		return msg
	}
	msg.Body = body
	return msg
}

func toMessage(row models.StoredMessage) models.Message {
	return models.Message{
		ID:         row.ID,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		ThreadID:   row.ThreadID,
		Timestamp:  row.Timestamp,
	}
}
