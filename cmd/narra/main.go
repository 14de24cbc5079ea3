// Package main provides the entry point for the narra CLI and MCP server.
package main

import (
	"os"

	"github.com/raphaelgruber/narra-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
