// Package main is the entrypoint for shapeq.
package main

import "github.com/tutu-network/shapeq/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
