package main

import (
	"os"
	_ "time/tzdata"

	"vocsched/cmd/vocsched/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
