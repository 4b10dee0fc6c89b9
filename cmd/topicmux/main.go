package main

import (
	"os"

	"github.com/miladsoleymani/topicmux/internal/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.NewRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
