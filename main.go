// The main package for the cnr-fetcher executable.
package main

import "github.com/JakeFAU/ecourts-cnr-fetcher/cmd"

func main() {
	cmd.Execute()
}
