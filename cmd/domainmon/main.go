// Command domainmon monitors domain reachability and certificate expiry.
package main

import (
	"os"

	"github.com/MORADOK/VaccineHomeBot-sub001/cmd/domainmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
