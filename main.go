// Package main is the entry point for the whatsrunning application.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/zorak1103/whatsrunning/cmd"
)

func main() {
	// Exit code semantics: 0 = success, 1 = general error/panic
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "\nStack trace:\n%s\n", debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
