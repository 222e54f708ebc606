package mirai

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/willowblossom/internal/testutil/testlog"
)

const friendFrame = `{"syncId":"-1","data":{"type":"FriendMessage","sender":{"id":123,"nickname":"willow","remark":""},"messageChain":[{"type":"Source","id":4242,"time":1700000000},{"type":"Plain","text":"hello "},{"type":"Image","imageId":"{ABC}.png","url":"http://img"},{"type":"Plain","text":"there"}]}}`

const groupFrame = `{"syncId":"-1","data":{"type":"GroupMessage","sender":{"id":7,"memberName":"blossom","group":{"id":99,"name":"garden"}},"messageChain":[{"type":"Source","id":5},{"type":"Plain","text":"hi all"}]}}`

func TestDecodeFriendEvent(t *testing.T) {
	testlog.Start(t)
	ev, err := DecodeEvent([]byte(friendFrame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.IsGroup() {
		t.Fatalf("friend message reported as group")
	}
	if got := ev.Line(); got != "willow: hello [image]there" {
		t.Fatalf("unexpected line: %q", got)
	}
	id, ok := ev.Chain.SourceID()
	if !ok || id != 4242 {
		t.Fatalf("unexpected source id: %d ok=%v", id, ok)
	}
	if target := ev.ReplyTarget(); target.Kind != TargetFriend || target.ID != 123 {
		t.Fatalf("unexpected reply target: %+v", target)
	}
}

func TestDecodeGroupEvent(t *testing.T) {
	testlog.Start(t)
	ev, err := DecodeEvent([]byte(groupFrame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ev.IsGroup() || ev.Sender.Name() != "blossom" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if target := ev.ReplyTarget(); target.Kind != TargetGroup || target.ID != 99 {
		t.Fatalf("unexpected reply target: %+v", target)
	}
}

func TestDecodeEventRejectsNonChat(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeEvent([]byte(`{"syncId":"-1","data":{"type":"BotOnlineEvent","qq":1}}`))
	if !errors.Is(err, ErrNotChatMessage) {
		t.Fatalf("expected ErrNotChatMessage, got %v", err)
	}
	_, err = DecodeEvent([]byte(`not json`))
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	_, err = DecodeEvent([]byte(`{"syncId":"-1"}`))
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope for missing data, got %v", err)
	}
}

func TestCommanderSendTextNumbersCommands(t *testing.T) {
	testlog.Start(t)
	var c Commander
	first, syncID, err := c.SendText(Target{Kind: TargetGroup, ID: 99}, "  ping  ")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if syncID != "1" {
		t.Fatalf("unexpected sync id: %q", syncID)
	}
	if !strings.Contains(string(first), `"command":"sendGroupMessage"`) {
		t.Fatalf("unexpected command: %s", first)
	}

	send, err := DecodeSend(first)
	if err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if send.SyncID != "1" || send.Target.Kind != TargetGroup || send.Target.ID != 99 {
		t.Fatalf("unexpected send: %+v", send)
	}
	if send.Chain.Text() != "ping" {
		t.Fatalf("unexpected text: %q", send.Chain.Text())
	}

	_, syncID, err = c.SendText(Target{ID: 5}, "pong")
	if err != nil || syncID != "2" {
		t.Fatalf("expected sync id 2, got %q err=%v", syncID, err)
	}
}

func TestSendValidation(t *testing.T) {
	testlog.Start(t)
	var c Commander
	if _, _, err := c.SendText(Target{ID: 1}, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, _, err := c.SendText(Target{}, "hi"); !errors.Is(err, ErrTargetRequired) {
		t.Fatalf("expected ErrTargetRequired, got %v", err)
	}
	if _, err := DecodeSend([]byte(`{"syncId":"1","command":"recall","content":{}}`)); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestReplyAndEventEncoding(t *testing.T) {
	testlog.Start(t)
	payload, err := EncodeReply(Reply{SyncID: "3", Message: "success", MessageID: 77})
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	r, err := DecodeReply(payload)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if r.SyncID != "3" || r.Code != 0 || r.MessageID != 77 {
		t.Fatalf("unexpected reply: %+v", r)
	}
	if _, err := DecodeReply([]byte(friendFrame)); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("event must not decode as reply, got %v", err)
	}

	pushed, err := EncodeEvent(Event{
		Type:   TypeFriendMessage,
		Sender: Sender{ID: 5, Nickname: "echo"},
		Chain:  Chain{{Type: ElementSource, ID: 1}, Plain("back")},
	})
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	ev, err := DecodeEvent(pushed)
	if err != nil {
		t.Fatalf("decode pushed event: %v", err)
	}
	if ev.Line() != "echo: back" {
		t.Fatalf("unexpected line: %q", ev.Line())
	}
}
