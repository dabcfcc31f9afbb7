package main

import "github.com/strrl/agent-activity/cmd/agent-activity/commands"

func main() {
	commands.Execute()
}
