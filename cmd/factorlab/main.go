// Package main is the command-line entry point for factorlab, a
// cross-sectional factor-return estimation tool. It wires configuration and
// CSV panel data into the estimation library; all numerical logic lives in
// the internal packages.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
