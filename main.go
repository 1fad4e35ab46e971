package main

import "ticket-bot/cmd"

func main() {
	cmd.Execute()
}
