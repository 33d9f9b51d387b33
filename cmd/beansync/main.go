package main

import "github.com/beansync/beansync/internal/cli"

func main() {
	cli.Execute()
}
