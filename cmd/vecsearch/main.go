package main

import "vecsearch/internal/cli"

func main() {
	cli.Execute()
}
