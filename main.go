package main

import (
	"os"

	"github.com/weftlang/weftsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
