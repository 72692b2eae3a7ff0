package main

import "toolpin/internal/cli"

// version is set with -ldflags "-X main.version=v1.2.3" for release builds.
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
