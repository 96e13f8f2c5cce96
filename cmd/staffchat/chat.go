package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	staffchat "github.com/staffloop/staffchat-go"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat session",
	Long: `Open an interactive chat session.

Commands inside the session:
  /direct <employee-id>   switch to a direct conversation
  /channel <channel-id>   switch to a channel
  /delete <message-id>    delete a message in the current conversation
  /status                 show connection state
  /quit                   leave

Any other input line is sent as a message to the current conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newChatClient()
		if err != nil {
			return err
		}

		sess := staffchat.NewSession(client, staffchat.SessionOptions{
			Identity:  configIdentity{cfg: cfg},
			LocalName: cfg.Auth.DisplayName,
			Logger:    cliLogger(),
			OnUpdate: func(key staffchat.ConversationKey) {
				// Re-render is driven from here; the ledger itself stays the
				// single source of truth.
				renderUpdate(key)
			},
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = sess.Initialize(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		defer sess.Cleanup()
		if serr := sess.Err(); serr != nil {
			fmt.Fprintf(os.Stderr, "warning: degraded session: %v\n", serr)
		}

		currentSession = sess
		fmt.Printf("Signed in as %s. Type /direct <id> or /channel <id> to start.\n", sess.LocalID())

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if err := runChatLine(sess, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	},
}

// currentSession lets renderUpdate query messages without plumbing the
// session through the update callback.
var currentSession *staffchat.Session

func runChatLine(sess *staffchat.Session, line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(line, "/direct "):
		target := strings.TrimSpace(strings.TrimPrefix(line, "/direct "))
		if err := sess.SelectConversation(ctx, staffchat.ModeDirect, target); err != nil {
			return err
		}
		printConversation(sess, sess.ActiveKey())
		return nil
	case strings.HasPrefix(line, "/channel "):
		target := strings.TrimSpace(strings.TrimPrefix(line, "/channel "))
		if err := sess.SelectConversation(ctx, staffchat.ModeChannel, target); err != nil {
			return err
		}
		printConversation(sess, sess.ActiveKey())
		return nil
	case strings.HasPrefix(line, "/delete "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
		return sess.DeleteMessage(ctx, "", id)
	case line == "/status":
		if sess.IsConnected() {
			fmt.Println("connected")
		} else {
			fmt.Println("disconnected (messages will not be confirmed until reconnection)")
		}
		return nil
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("unknown command %q", strings.Fields(line)[0])
	default:
		return sess.Send(ctx, line)
	}
}

func renderUpdate(key staffchat.ConversationKey) {
	sess := currentSession
	if sess == nil || key != sess.ActiveKey() {
		return
	}
	msgs := sess.Messages(key)
	if len(msgs) == 0 {
		return
	}
	fmt.Print("\r")
	printMessage(sess, msgs[len(msgs)-1])
	fmt.Print("> ")
}

func printConversation(sess *staffchat.Session, key staffchat.ConversationKey) {
	for _, m := range sess.Messages(key) {
		printMessage(sess, m)
	}
}

// printMessage renders one ledger entry. Deleted entries stay in place as
// placeholders; suppressing their text here is the presentation rule, the
// ledger keeps the original.
func printMessage(sess *staffchat.Session, m staffchat.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	if p, ok := sess.Directory().Participant(m.SenderID); ok && p.Name != "" {
		name = p.Name
	}
	text := m.Text
	if m.Deleted {
		text = "(message deleted)"
	}
	fmt.Printf("[%s] %s: %s\n", ts, name, text)
}
