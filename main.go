// main.go
package main

import (
	"os"

	"github.com/arwahdevops/dbtyper/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
