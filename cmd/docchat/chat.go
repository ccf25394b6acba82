package main

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"docchat/pkg/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat <path-or-URL>",
	Short: "Open a conversation on a session path",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	activationPath := sessionPath(args[0])
	machine := chat.NewStateMachine(activationPath)
	if machine.Phase() != chat.PhaseConversation {
		return fmt.Errorf("%s is not a session path (expected /chat/{owner}/{session})", args[0])
	}

	session := chat.NewSession(chat.NewAPI(gatewayURL), activationPath)
	if err := session.Activate(cmd.Context()); err != nil {
		return err
	}
	if name := session.DocumentName(); name != "" {
		cmd.Printf("Chatting with %s. Ask a question, or press Ctrl-D to leave.\n", name)
	} else {
		cmd.Println("Ask a question, or press Ctrl-D to leave.")
	}

	// One turn at a time: the loop blocks on the answer before reading
	// the next question.
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		ans, err := session.SendMessage(cmd.Context(), query)
		if err != nil {
			cmd.Printf("error: %v\n", session.Err())
			continue
		}
		cmd.Printf("\n%s\n", ans.Answer)
		if len(ans.Sources) > 0 {
			cmd.Printf("sources: %s\n", strings.Join(ans.Sources, ", "))
		}
		cmd.Println()
	}
	cmd.Println()
	return scanner.Err()
}

// sessionPath accepts either a bare /chat/... path or a full URL to
// one and returns the path part.
func sessionPath(arg string) string {
	if u, err := url.Parse(arg); err == nil && u.Scheme != "" {
		return u.Path
	}
	return arg
}
