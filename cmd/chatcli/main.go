package main

import "github.com/freshtrade/chatcore/cmd/chatcli/cmd"

func main() {
	cmd.Execute()
}
