package main

import "github.com/mcoot/gameserver/internal/cli"

func main() {
	cli.Execute()
}
