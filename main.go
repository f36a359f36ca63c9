package main

import "github.com/dock-ai/registry/pkg/cli"

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cli.Execute(Version)
}
