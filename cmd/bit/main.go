package main

import "github.com/bit-project/bit/internal/cli"

func main() {
	cli.Execute()
}
