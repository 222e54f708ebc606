package mirai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

var (
	ErrInvalidEnvelope = errors.New("mirai: invalid envelope")
	ErrNotChatMessage  = errors.New("mirai: not a chat message")
	ErrEmptyMessage    = errors.New("mirai: empty message")
	ErrTargetRequired  = errors.New("mirai: target required")
	ErrUnknownCommand  = errors.New("mirai: unknown command")
)

// EventSyncID marks server-pushed events.
const EventSyncID = "-1"

const (
	TypeFriendMessage = "FriendMessage"
	TypeGroupMessage  = "GroupMessage"
	TypeTempMessage   = "TempMessage"

	CommandSendFriendMessage = "sendFriendMessage"
	CommandSendGroupMessage  = "sendGroupMessage"
)

type envelope struct {
	SyncID  string          `json:"syncId"`
	Command string          `json:"command,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Sender is a friend (Nickname) or a group member (MemberName, Group).
type Sender struct {
	ID         int64  `json:"id"`
	Nickname   string `json:"nickname,omitempty"`
	MemberName string `json:"memberName,omitempty"`
	Group      *Group `json:"group,omitempty"`
}

// Name is the display name of the sender.
func (s Sender) Name() string {
	switch {
	case s.Nickname != "":
		return s.Nickname
	case s.MemberName != "":
		return s.MemberName
	default:
		return strconv.FormatInt(s.ID, 10)
	}
}

// Event is an inbound chat message.
type Event struct {
	Type   string `json:"type"`
	Sender Sender `json:"sender"`
	Chain  Chain  `json:"messageChain"`
}

func (e Event) IsGroup() bool {
	return e.Type == TypeGroupMessage
}

// Line renders the event as "name: text".
func (e Event) Line() string {
	return e.Sender.Name() + ": " + e.Chain.Text()
}

// ReplyTarget is where an answer to e should be sent.
func (e Event) ReplyTarget() Target {
	if e.IsGroup() && e.Sender.Group != nil {
		return Target{Kind: TargetGroup, ID: e.Sender.Group.ID}
	}
	return Target{Kind: TargetFriend, ID: e.Sender.ID}
}

// DecodeEvent parses a server push. Frames that are not chat messages
// (command replies, other events) return ErrNotChatMessage.
func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(env.Data) == 0 {
		return Event{}, fmt.Errorf("%w: missing data", ErrInvalidEnvelope)
	}
	var ev Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	switch ev.Type {
	case TypeFriendMessage, TypeGroupMessage, TypeTempMessage:
		return ev, nil
	default:
		return Event{}, ErrNotChatMessage
	}
}

// EncodeEvent renders ev as a server push.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SyncID: EventSyncID, Data: data})
}

type TargetKind int

const (
	TargetFriend TargetKind = iota
	TargetGroup
)

type Target struct {
	Kind TargetKind
	ID   int64
}

func (t Target) command() string {
	if t.Kind == TargetGroup {
		return CommandSendGroupMessage
	}
	return CommandSendFriendMessage
}

type sendContent struct {
	Target int64 `json:"target"`
	Chain  Chain `json:"messageChain"`
}

// Send is a decoded send command.
type Send struct {
	SyncID string
	Target Target
	Chain  Chain
}

// EncodeSend renders a send command for target.
func EncodeSend(syncID string, target Target, chain Chain) ([]byte, error) {
	if target.ID == 0 {
		return nil, ErrTargetRequired
	}
	if len(chain) == 0 {
		return nil, ErrEmptyMessage
	}
	content, err := json.Marshal(sendContent{Target: target.ID, Chain: chain})
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SyncID: syncID, Command: target.command(), Content: content})
}

// DecodeSend parses a send command, the server side of EncodeSend.
func DecodeSend(payload []byte) (Send, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Send{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	var kind TargetKind
	switch env.Command {
	case CommandSendFriendMessage:
		kind = TargetFriend
	case CommandSendGroupMessage:
		kind = TargetGroup
	default:
		return Send{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command)
	}
	var content sendContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return Send{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if content.Target == 0 {
		return Send{}, ErrTargetRequired
	}
	return Send{
		SyncID: env.SyncID,
		Target: Target{Kind: kind, ID: content.Target},
		Chain:  content.Chain,
	}, nil
}

// Reply answers a command.
type Reply struct {
	SyncID    string `json:"-"`
	Code      int    `json:"code"`
	Message   string `json:"msg"`
	MessageID int64  `json:"messageId,omitempty"`
}

func EncodeReply(r Reply) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SyncID: r.SyncID, Data: data})
}

// DecodeReply parses a command reply. Server pushes return
// ErrInvalidEnvelope.
func DecodeReply(payload []byte) (Reply, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.SyncID == EventSyncID || len(env.Data) == 0 {
		return Reply{}, fmt.Errorf("%w: not a reply", ErrInvalidEnvelope)
	}
	var r Reply
	if err := json.Unmarshal(env.Data, &r); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	r.SyncID = env.SyncID
	return r, nil
}

// Commander numbers outgoing commands.
type Commander struct {
	seq atomic.Uint64
}

// SendText encodes a Plain-only send command and returns it with its sync
// id.
func (c *Commander) SendText(target Target, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", ErrEmptyMessage
	}
	syncID := strconv.FormatUint(c.seq.Add(1), 10)
	payload, err := EncodeSend(syncID, target, Chain{Plain(text)})
	if err != nil {
		return nil, "", err
	}
	return payload, syncID, nil
}
