package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/randalmurphal/traveops/internal/orchestrator"
)

type replOptions struct {
	Phone          string
	ConversationID string
}

var (
	youPrefix  = color.New(color.FgCyan, color.Bold).Sprint("you> ")
	botPrefix  = color.New(color.FgGreen, color.Bold).Sprint("traveops> ")
	notePrefix = color.New(color.FgYellow).Sprint("note> ")
	errPrefix  = color.New(color.FgRed, color.Bold).Sprint("error> ")
)

func runREPL(ctx context.Context, a *app, opts replOptions) error {
	fmt.Println("traveops " + version + ": travel plans, reminders and creative briefs.")
	fmt.Println("Type a request, /help for commands, /quit to leave.")

	conversationID := opts.ConversationID
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(youPrefix)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit", "exit", "quit":
			return nil
		case "/help":
			printHelp()
			continue
		case "/clear":
			if conversationID == "" {
				fmt.Println(notePrefix + "nothing to clear yet")
				continue
			}
			if err := a.orc.Clear(ctx, conversationID); err != nil {
				fmt.Println(errPrefix + err.Error())
				continue
			}
			fmt.Println(notePrefix + "conversation cleared")
			continue
		case "/history":
			printHistory(a, conversationID)
			continue
		case "/status":
			printStatus(ctx, a, conversationID)
			continue
		}

		resp, err := a.orc.Chat(ctx, orchestrator.ChatRequest{
			Message:        line,
			ConversationID: conversationID,
			Phone:          opts.Phone,
		})
		if err != nil {
			fmt.Println(errPrefix + err.Error())
			continue
		}
		conversationID = resp.ConversationID

		fmt.Println(botPrefix + resp.Response)
		if resp.Suspended {
			fmt.Println(notePrefix + "waiting on your answer; reply to continue")
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  /status   show conversation state (node, intent, pending question)
  /history  print the transcript so far
  /clear    start the conversation over
  /quit     leave

Anything else is sent to the assistant. When it asks a question
(booking approval, notification confirmation), your next message
is the answer.`)
}

func printHistory(a *app, conversationID string) {
	if conversationID == "" {
		fmt.Println(notePrefix + "no conversation yet")
		return
	}
	history, err := a.orc.History(conversationID)
	if err != nil {
		fmt.Println(errPrefix + err.Error())
		return
	}
	if len(history) == 0 {
		fmt.Println(notePrefix + "transcript is empty")
		return
	}
	for _, m := range history {
		prefix := youPrefix
		if m.Role != "user" {
			prefix = botPrefix
		}
		fmt.Println(prefix + m.Content)
	}
}

func printStatus(ctx context.Context, a *app, conversationID string) {
	if conversationID == "" {
		fmt.Println(notePrefix + "no conversation yet")
		return
	}
	st, err := a.orc.Status(ctx, conversationID)
	if err != nil {
		fmt.Println(errPrefix + err.Error())
		return
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		fmt.Println(errPrefix + err.Error())
		return
	}
	fmt.Println(string(out))
}
