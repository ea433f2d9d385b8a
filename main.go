package main

import (
	serverless "serverless/cmd/serverless"
)

var (
	// Version is injected at build time with -ldflags
	Version = "0.0.0"
	// Build is injected at build time with -ldflags
	Build = "dev"
)

func main() {
	serverless.Run(Version, Build)
}
