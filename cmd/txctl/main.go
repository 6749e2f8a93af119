package main

import "scriberr/internal/cli"

func main() {
	cli.Execute()
}
