package main

import "github.com/dkeye/Hush/internal/cli"

func main() {
	cli.Execute()
}
