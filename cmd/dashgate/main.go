package main

import "github.com/dashgate/dashgate/cmd/dashgate/cmd"

func main() {
	cmd.Execute()
}
