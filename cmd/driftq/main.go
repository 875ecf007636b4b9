package main

import "github.com/ppiankov/driftq/internal/cli"

func main() {
	cli.Execute()
}
