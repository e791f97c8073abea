// go-progpow is the command line tool for computing and verifying progpow
// hashes and for pregenerating verification caches and DAGs.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
