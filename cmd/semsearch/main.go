// Package main is the entry point of the semsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/semsearch/cmd/semsearch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
