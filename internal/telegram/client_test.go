package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	failures []error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func testClient(api sender, chat chatTarget) *Client {
	return newClient(api, chat, Options{RetryDelayBase: time.Millisecond, ChunkSize: 100, ChunkDelay: -1})
}

func TestParseChatID(t *testing.T) {
	tests := []struct {
		input   string
		want    chatTarget
		wantErr bool
	}{
		{"123456", chatTarget{id: 123456}, false},
		{"-1001234567890", chatTarget{id: -1001234567890}, false},
		{" @nifty_oi ", chatTarget{username: "@nifty_oi"}, false},
		{"@", chatTarget{}, true},
		{"not-a-number", chatTarget{}, true},
		{"", chatTarget{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseChatID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChatID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseChatID(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is checked before any network call.
	_, err := NewClient("token", "not-a-number", Options{})
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestNewClient_MissingToken(t *testing.T) {
	if _, err := NewClient("", "123", Options{}); err == nil {
		t.Error("Expected error for empty token, got nil")
	}
}

func TestSend_ChannelTarget(t *testing.T) {
	api := &fakeSender{}
	c := testClient(api, chatTarget{username: "@nifty_oi"})

	if err := c.Send(context.Background(), "*hello*"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(api.sent))
	}
	msg := api.sent[0]
	if msg.ChannelUsername != "@nifty_oi" || msg.ParseMode != tgbotapi.ModeMarkdownV2 || msg.Text != "*hello*" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSend_ChunksLongMessages(t *testing.T) {
	api := &fakeSender{}
	c := testClient(api, chatTarget{id: 42})

	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "line %02d\n", i)
	}
	if err := c.Send(context.Background(), b.String()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(api.sent) < 3 {
		t.Fatalf("sent %d messages, want at least 3", len(api.sent))
	}
	var joined strings.Builder
	for _, m := range api.sent {
		if m.ChatID != 42 {
			t.Errorf("ChatID = %d, want 42", m.ChatID)
		}
		joined.WriteString(m.Text)
	}
	if joined.String() != b.String() {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSend_RetriesThenFails(t *testing.T) {
	api := &fakeSender{failures: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	c := testClient(api, chatTarget{id: 1})

	err := c.Send(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "failed after 3 retries") {
		t.Fatalf("Send() error = %v, want retry exhaustion", err)
	}

	api = &fakeSender{failures: []error{errors.New("boom"), nil}}
	c = testClient(api, chatTarget{id: 1})
	if err := c.Send(context.Background(), "text"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(api.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(api.sent))
	}
}

func TestSend_BadRequestIsNotRetried(t *testing.T) {
	api := &fakeSender{failures: []error{&tgbotapi.Error{Code: 400, Message: "can't parse entities"}, nil}}
	c := testClient(api, chatTarget{id: 1})

	if err := c.Send(context.Background(), "text"); err == nil {
		t.Fatal("Send() expected error")
	}
	if len(api.failures) != 1 {
		t.Errorf("bad request was retried")
	}
}

func TestSendErrorEscapesCode(t *testing.T) {
	api := &fakeSender{}
	c := testClient(api, chatTarget{id: 1})

	if err := c.SendError(context.Background(), errors.New("bad `tick` at C:\\x")); err != nil {
		t.Fatal(err)
	}
	want := "⚠️ *OI tracker error*\n`bad \\`tick\\` at C:\\\\x`"
	if api.sent[0].Text != want {
		t.Errorf("text = %q, want %q", api.sent[0].Text, want)
	}
}

func TestHandleCommand(t *testing.T) {
	api := &fakeSender{}
	c := testClient(api, chatTarget{id: 1})
	msg := func(text string) *tgbotapi.Message {
		return &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: 7},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: utf8.RuneCountInString(strings.Fields(text)[0])}},
		}
	}

	c.handleCommand(msg("/ping"), nil)
	c.handleCommand(msg("/status"), func() string { return "last cycle ok" })
	c.handleCommand(msg("/status"), nil)
	c.handleCommand(msg("/unknown"), nil)

	want := []string{"Pong", "last cycle ok", "No cycle has run yet"}
	if len(api.sent) != len(want) {
		t.Fatalf("sent %d replies, want %d", len(api.sent), len(want))
	}
	for i, w := range want {
		if api.sent[i].Text != w || api.sent[i].ChatID != 7 {
			t.Errorf("reply %d = %q to %d", i, api.sent[i].Text, api.sent[i].ChatID)
		}
	}
}
