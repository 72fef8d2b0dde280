package main

import "github.com/stdkoehler/gamemaister-cli/cmd"

func main() {
	cmd.Execute()
}
