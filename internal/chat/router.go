package chat

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/velikov/smetabot/internal/wizard"
)

const helpText = `I build construction estimates step by step.

/start — begin a new estimate
/cancel — abandon the current estimate
/help — this message

While an estimate is in progress, answer the questions or use the
suggested buttons. Send "back" to redo the previous answer.`

// Router routes inbound chat messages to the wizard and sends its replies
// back through the adapter. Wizard sessions are keyed per platform and chat,
// so the same person may run independent estimates on two platforms.
type Router struct {
	engine    *wizard.Engine
	adapter   Adapter
	botUserID string // the bot's own user ID (to filter self-messages)
	out       io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Engine    *wizard.Engine
	Adapter   Adapter
	BotUserID string    // bot's user ID for self-message filtering
	Out       io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("chat: router: engine is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("chat: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		engine:    opts.Engine,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		out:       out,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message or empty text → ignore
//  2. /start, /cancel, /help → the corresponding wizard entry point
//  3. Everything else → the wizard's state machine for this chat
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	fmt.Fprintf(r.out, "chat: router: recv [platform=%s chat=%s user=%s] %q\n",
		msg.Platform, msg.ChatID, msg.UserName, truncate(text, 80))

	key := sessionKey(msg)
	var reply wizard.Reply
	switch command(text) {
	case "start":
		reply = r.engine.Start(key)
	case "cancel":
		reply = r.engine.Cancel(key)
	case "help":
		reply = wizard.Reply{Text: helpText}
	default:
		reply = r.engine.Handle(key, text)
	}
	r.deliver(ctx, msg.ChatID, reply)
}

// sessionKey identifies one wizard session: a chat on a platform.
func sessionKey(msg InboundMessage) string {
	return msg.Platform + ":" + msg.ChatID
}

// command extracts a leading slash command, tolerating the /cmd@BotName
// form Telegram uses in group chats. Non-commands return "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at != -1 {
		cmd = cmd[:at]
	}
	return strings.TrimPrefix(cmd, "/")
}

func (r *Router) deliver(ctx context.Context, chatID string, reply wizard.Reply) {
	err := r.adapter.Send(ctx, OutboundMessage{
		ChatID:         chatID,
		Text:           reply.Text,
		Choices:        reply.Choices,
		Files:          reply.Files,
		RemoveKeyboard: reply.RemoveKeyboard,
	})
	if err != nil {
		log.Printf("chat: router: send: %v", err)
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
