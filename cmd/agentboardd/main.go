// agentboardd correlates tmux windows with AI coding agent session
// logs and streams terminal I/O to connected clients over a websocket.
package main

import (
	"os"

	"github.com/agentboard/agentboard/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
