package main

import (
	"tiklay/cmd/client/cmd"
)

func main() {
	cmd.Execute()
}
