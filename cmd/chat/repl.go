package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hilthontt/quizchat/internal/application/chat"
	"github.com/hilthontt/quizchat/internal/domain"
)

var (
	errNoConversation = errors.New("no open conversation, use /open <peer>")
	errUsage          = errors.New("usage")
)

// Message bodies come from other users; markup is stripped before it
// reaches the terminal.
var sanitizer = bluemonday.StrictPolicy()

const helpText = `commands:
  /open <peer>            open a conversation and load its history
  /close                  close the open conversation
  /older                  load an older page of history
  /list                   list conversations
  /read                   mark the open conversation read
  /emoji <glyph>          send an emoji
  /sticker <id> [audio]   send a sticker, audio is a file to upload
  /image <url|file>       send an image by url or upload a file
  /typing                 report a keystroke
  /quit                   exit
anything else is sent as text to the open conversation`

type command struct {
	name string
	args []string
	text string
}

// parseCommand splits a line into a slash command and its arguments. Lines
// without a leading slash become a "say" command carrying the raw text.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", text: line}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, fmt.Errorf("%w: /help", errUsage)
	}
	cmd := command{name: strings.ToLower(fields[0]), args: fields[1:]}

	want := map[string][2]int{
		"open": {1, 1}, "close": {0, 0}, "older": {0, 0}, "list": {0, 0},
		"read": {0, 0}, "emoji": {1, 1}, "sticker": {1, 2}, "image": {1, 1},
		"typing": {0, 0}, "quit": {0, 0}, "help": {0, 0},
	}
	bounds, ok := want[cmd.name]
	if !ok {
		return command{}, fmt.Errorf("unknown command /%s", cmd.name)
	}
	if n := len(cmd.args); n < bounds[0] || n > bounds[1] {
		return command{}, fmt.Errorf("%w: wrong number of arguments for /%s", errUsage, cmd.name)
	}
	return cmd, nil
}

type repl struct {
	client *chat.Client
	local  int64

	mu      sync.Mutex
	out     io.Writer
	active  int64
	printed map[string]bool
}

func newREPL(client *chat.Client, out io.Writer, local int64) *repl {
	return &repl{
		client:  client,
		local:   local,
		out:     out,
		printed: make(map[string]bool),
	}
}

// run reads commands until EOF, /quit or ctx ends.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	r.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			cmd, err := parseCommand(line)
			if err != nil {
				r.printf("! %v\n", err)
				continue
			}
			if cmd.name == "quit" {
				return nil
			}
			if err := r.exec(ctx, cmd); err != nil {
				r.printf("! %v\n", err)
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "":
		return nil
	case "help":
		r.printf("%s\n", helpText)
		return nil
	case "list":
		r.printConversations()
		return nil
	case "open":
		peer, err := strconv.ParseInt(cmd.args[0], 10, 64)
		if err != nil || peer <= 0 {
			return fmt.Errorf("invalid peer %q", cmd.args[0])
		}
		return r.open(ctx, &peer)
	case "close":
		return r.open(ctx, nil)
	}

	peer := r.activePeer()
	if peer == 0 {
		return errNoConversation
	}

	switch cmd.name {
	case "older":
		hasMore, err := r.client.LoadOlder(ctx, peer)
		if err != nil {
			return err
		}
		r.printHistory(peer)
		if !hasMore {
			r.printf("-- beginning of conversation --\n")
		}
		return nil
	case "read":
		return r.client.MarkRead(ctx, peer)
	case "typing":
		return r.client.Keystroke(peer)
	case "say":
		return r.sent(r.client.SendMessage(ctx, peer, cmd.text))
	case "emoji":
		return r.sent(r.client.SendEmoji(ctx, peer, cmd.args[0]))
	case "sticker":
		if len(cmd.args) == 1 {
			return r.sent(r.client.SendSticker(ctx, peer, cmd.args[0], ""))
		}
		f, err := os.Open(cmd.args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		return r.sent(r.client.SendStickerWithAudio(ctx, peer, cmd.args[0], filepath.Base(f.Name()), f))
	case "image":
		target := cmd.args[0]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return r.sent(r.client.SendImage(ctx, peer, target))
		}
		f, err := os.Open(target)
		if err != nil {
			return err
		}
		defer f.Close()
		return r.sent(r.client.SendImageFile(ctx, peer, filepath.Base(f.Name()), f))
	}
	return fmt.Errorf("unknown command /%s", cmd.name)
}

func (r *repl) open(ctx context.Context, peer *int64) error {
	r.mu.Lock()
	r.active = 0
	if peer != nil {
		r.active = *peer
	}
	r.printed = make(map[string]bool)
	r.mu.Unlock()

	if err := r.client.SetActiveConversation(ctx, peer); err != nil {
		return err
	}
	if peer != nil {
		r.printf("-- conversation with #%d --\n", *peer)
		r.printHistory(*peer)
	}
	return nil
}

func (r *repl) sent(msg domain.ChatMessage, err error) error {
	if err != nil {
		return fmt.Errorf("%w (kept locally as %s)", err, msg.ID)
	}
	return nil
}

// watch prints what the client reports until ctx ends.
func (r *repl) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.client.Updates():
			r.handleUpdate(u)
		}
	}
}

func (r *repl) handleUpdate(u chat.Update) {
	peer := r.activePeer()

	switch u.Kind {
	case chat.UpdateMessages:
		if peer != 0 && u.PeerID == peer {
			r.printHistory(peer)
		}
	case chat.UpdateTyping:
		if peer != 0 && u.PeerID == peer && r.client.Typing(peer) {
			r.printf("   #%d is typing...\n", peer)
		}
	case chat.UpdateConnection:
		if r.client.Connected() {
			r.printf("-- connected --\n")
		} else {
			r.printf("-- disconnected --\n")
		}
	case chat.UpdateError:
		if err := r.client.LastError(); err != nil {
			r.printf("! %v\n", err)
		}
	}
}

// printHistory prints the messages of peer not printed yet. Optimistic
// copies wait until the server confirms them.
func (r *repl) printHistory(peer int64) {
	msgs := r.client.Messages(peer)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		if r.printed[m.ID] {
			continue
		}
		if m.IsTemporary() {
			continue
		}
		r.printed[m.ID] = true
		fmt.Fprintln(r.out, formatMessage(m, r.local))
	}
}

func (r *repl) printConversations() {
	convs := r.client.Conversations()
	if len(convs) == 0 {
		r.printf("no conversations\n")
		return
	}
	for _, c := range convs {
		name := c.Peer.Username
		if name == "" {
			name = "#" + strconv.FormatInt(c.PeerID, 10)
		}
		line := fmt.Sprintf("%6d  %-20s", c.PeerID, name)
		if c.UnreadCount > 0 {
			line += fmt.Sprintf("  (%d unread)", c.UnreadCount)
		}
		if r.client.IsOnline(c.PeerID) {
			line += "  online"
		}
		r.printf("%s\n", line)
	}
}

func (r *repl) activePeer() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func formatMessage(m domain.ChatMessage, local int64) string {
	who := m.Sender.Username
	switch {
	case m.SenderID == local:
		who = "me"
	case who == "":
		who = "#" + strconv.FormatInt(m.SenderID, 10)
	}

	body := html.UnescapeString(sanitizer.Sanitize(m.Body))
	switch m.Kind {
	case domain.KindSticker:
		body = "[sticker " + m.Media + "]"
		if m.Audio != "" {
			body += " [audio " + m.Audio + "]"
		}
	case domain.KindImage:
		body = "[image " + m.Media + "]"
	}

	ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
	return fmt.Sprintf("[%s] %s: %s", ts, who, body)
}
