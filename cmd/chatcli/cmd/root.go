package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/freshtrade/chatcore/internal/auth"
	"github.com/freshtrade/chatcore/internal/chat"
	"github.com/freshtrade/chatcore/internal/config"
	"github.com/freshtrade/chatcore/internal/directory"
	"github.com/freshtrade/chatcore/internal/logging"
	"github.com/freshtrade/chatcore/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Marketplace chat client",
	Long: `chatcli is a terminal front end for the marketplace chat engine.

Available commands:
  rooms    List your chat rooms (or all rooms for one listing)
  chat     Open a room and exchange messages

Use "chatcli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	logging.New()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine wires the engine from environment configuration. With no
// broker URL configured the in-memory transport is used, which is
// enough to exercise a session locally.
func newEngine() (*chat.Engine, *config.Config) {
	cfg := config.New()
	source := auth.TokenSource{Token: cfg.AccessToken}

	var tr transport.Transport
	if cfg.BrokerURL == "" {
		tr = transport.NewWatermill()
	} else {
		tr = transport.NewWebsocket()
	}

	manager := chat.NewManager(chat.ManagerDeps{
		Transport: tr,
		Auth:      source,
		Endpoint:  cfg.BrokerURL,
	})
	dir := directory.NewClient(cfg.APIBaseURL, source, cfg.RequestTimeout)

	engine := chat.NewEngine(chat.Dependencies{
		Auth:      source,
		Manager:   manager,
		Directory: dir,
	})
	return engine, cfg
}
