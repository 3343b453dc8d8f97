package main

import (
	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/cli"
)

func main() {
	cli.Execute()
}
