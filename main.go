// Package main is the entry point for the opennotes batch tooling. It
// exposes the worker service that processes dispatched batch jobs and the
// CLI for starting and inspecting jobs over community note candidates.
package main

import "github.com/opennotes-ai/opennotes-sub006/cmd"

func main() {
	cmd.Execute()
}
