package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshtrade/chatcore/internal/domain"
)

var chatRoomID int64

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a chat room",
	Long: `Opens one room as the active session: seeds the log from history,
prints live messages as they arrive, and sends each line you type.
Type /quit to close the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		ctx := context.Background()

		if _, err := engine.OpenDirectory(ctx); err != nil {
			return err
		}
		defer engine.CloseAll(ctx)

		session, err := engine.SelectRoom(ctx, chatRoomID)
		if err != nil {
			return err
		}

		for _, msg := range session.Messages() {
			printMessage(msg)
		}
		if err := session.MarkRead(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "mark read: %v\n", err)
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				break
			}
			if err := session.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed, message kept for retry: %v\n", err)
			}
		}
		return engine.Back(ctx)
	},
}

func printMessage(msg domain.ChatMessage) {
	marker := ""
	if msg.State == domain.DeliveryFailed {
		marker = " [failed]"
	}
	fmt.Printf("[%s] %d: %s%s\n", msg.SentAt.Format("15:04:05"), msg.SenderID, msg.Body, marker)
}

func init() {
	chatCmd.Flags().Int64Var(&chatRoomID, "room", 0, "room id to open")
	chatCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(chatCmd)
}
