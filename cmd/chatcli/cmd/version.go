package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version can be overridden at build time with
// -ldflags "-X 'github.com/freshtrade/chatcore/cmd/chatcli/cmd.Version=v1.2.3'"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chatcli version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chatcli", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
