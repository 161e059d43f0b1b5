package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/freshtrade/chatcore/internal/domain"
)

var roomsListingID int64

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List chat rooms",
	Long: `Lists your chat rooms, most recently active first.

With --listing, lists every room attached to one of your listings
instead (the seller-side view).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		ctx := context.Background()

		var rooms []domain.ChatRoomSummary
		var err error
		if roomsListingID != 0 {
			rooms, err = engine.OpenListingDirectory(ctx, roomsListingID)
		} else {
			rooms, err = engine.OpenDirectory(ctx)
		}
		if err != nil {
			return err
		}
		defer engine.CloseAll(ctx)

		printRooms(rooms)
		return nil
	},
}

func printRooms(rooms []domain.ChatRoomSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tWITH\tUNREAD\tLAST MESSAGE\tAT")
	for _, room := range rooms {
		unread := ""
		if room.Unread {
			unread = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			room.RoomID, room.CounterpartName, unread,
			room.LastMessage, room.LastMessageAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func init() {
	roomsCmd.Flags().Int64Var(&roomsListingID, "listing", 0, "list rooms for one listing instead of the current user")
	rootCmd.AddCommand(roomsCmd)
}
