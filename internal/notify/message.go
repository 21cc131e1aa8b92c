package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull indicates the in-memory buffer rejected a notification.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed indicates the dispatcher no longer accepts work.
	ErrClosed = errors.New("notify: dispatcher closed")
	// ErrInvalidMessage indicates a message missing recipient or subject.
	ErrInvalidMessage = errors.New("notify: invalid message")
	// ErrInvalidConfig indicates a sender or queue was constructed with missing settings.
	ErrInvalidConfig = errors.New("notify: invalid config")
)

// Message is a notification with a stable identity, as carried across queues.
type Message struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Sender delivers a message to its recipient.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, message Message) error

func (fn SenderFunc) Send(ctx context.Context, message Message) error {
	return fn(ctx, message)
}

// NewMessage assigns an id to a notification.
func NewMessage(notification travel.Notification) (Message, error) {
	message := Message{
		ID:        uuid.NewString(),
		Recipient: strings.TrimSpace(notification.Recipient),
		Subject:   strings.TrimSpace(notification.Subject),
		Body:      notification.Body,
	}
	if err := message.Validate(); err != nil {
		return Message{}, err
	}
	return message, nil
}

func (message Message) Validate() error {
	if message.Recipient == "" {
		return fmt.Errorf("%w: recipient required", ErrInvalidMessage)
	}
	if message.Subject == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidMessage)
	}
	return nil
}

// DedupeKey identifies a delivery: the message id plus a digest of its content.
func (message Message) DedupeKey() string {
	digest := sha256.Sum256([]byte(message.Recipient + "\x00" + message.Subject + "\x00" + message.Body))
	return message.ID + ":" + hex.EncodeToString(digest[:8])
}
