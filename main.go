// Package main is the entry point for the Sentra command-line tool.
package main

import (
	"os"

	"sentra/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
