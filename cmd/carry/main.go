package main

import "github.com/rustyeddy/carry/internal/cli"

func main() {
	cli.Execute()
}
