// Command siteadmin administers the site backend from a terminal.
package main

import (
	"os"

	"github.com/jonkersai/website/cmd/siteadmin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
