package main

import (
	"os"

	"github.com/SoftKiwiGames/vulcan/vulcan"
)

func main() {
	vulcan.New(os.Stdout, os.Stderr).Run()
}
