package main

import "github.com/kozaktomas/stylemate/cmd"

func main() {
	cmd.Execute()
}
