package main

import "github.com/Lanchu14/project-realtime/cmd/bookchat/cmd"

func main() {
	cmd.Execute()
}
