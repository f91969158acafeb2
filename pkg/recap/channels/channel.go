// Package channels defines the interfaces and types for the messaging
// platforms Recap listens on. Each platform adapter implements the Channel
// interface to deliver incoming chat events and accept replies in a
// unified way; the adapters themselves live outside this module.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageVoice   MessageType = "voice"
	MessageSharing MessageType = "sharing"
)

// Channel defines the interface that every messaging platform must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "wechat", "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a reply to the specified chat.
	Send(ctx context.Context, to string, msg *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// IncomingMessage represents a chat event received from any channel.
type IncomingMessage struct {
	// ID is the source-provided message identifier, unique within a chat.
	ID int64

	// Channel identifies the source channel (e.g. "wechat").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name, if the platform knows it.
	FromName string

	// ChatID is the group or counterpart identifier.
	ChatID string

	// ChatName is the group name or counterpart nickname, if known.
	ChatName string

	// IsGroup indicates whether the message is from a group chat.
	IsGroup bool

	// Type is the message content type.
	Type MessageType

	// Content is the raw content of the message. For image messages this
	// is the local path of the downloaded file.
	Content string

	// Timestamp is the sender-side send time.
	Timestamp time.Time

	// IsAtMe indicates the bot was @-mentioned in a group message.
	IsAtMe bool
}

// ReplyKind classifies an outgoing reply.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyError ReplyKind = "error"
)

// OutgoingMessage represents a reply to be sent through a channel.
type OutgoingMessage struct {
	// Kind is the reply classification (text or error).
	Kind ReplyKind

	// Content is the text content of the reply.
	Content string
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
)
