package main

import "github.com/sergev/floppybridge/cmd"

func main() {
	cmd.Execute()
}
