package main

import "github.com/speedrun-hq/shield/cmd"

func main() {
	cmd.Execute()
}
