// Package main is the entry point for the obsync CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/obsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
