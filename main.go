package main

import (
	"github.com/0xPolygon/edge-p2p/command/root"
)

func main() {
	root.NewRootCommand().Execute()
}
