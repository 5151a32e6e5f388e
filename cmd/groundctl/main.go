// Package main is the entry point for the ground station CLI.
// groundctl is the operator's terminal tool for running batch missions,
// inspecting fleet state, and sending emergency commands to drone agents.
package main

import (
	"os"

	"fireplane/cmd/groundctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
