package main

import "github.com/kozaktomas/gatekeeper/cmd"

func main() {
	cmd.Execute()
}
