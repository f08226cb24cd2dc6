package main

import (
	"os"

	"github.com/omegacortex/omega/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
