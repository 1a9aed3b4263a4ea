//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/sh"
)

// runV echoes and runs command, streaming its output.
func runV(command string, args ...string) error {
	fmt.Printf("Executing: %s %s\n", command, strings.Join(args, " "))
	if err := sh.RunV(command, args...); err != nil {
		return fmt.Errorf("error executing %s: %w", command, err)
	}
	return nil
}
