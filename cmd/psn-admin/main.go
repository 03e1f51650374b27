package main

import (
	"github.com/turtacn/psn/cmd/cli"
)

// main is the entry point for the psn-admin command-line tool.
// main 是 psn-admin 命令行工具的入口点。
func main() {
	cli.Execute()
}
