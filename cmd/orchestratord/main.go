// Command orchestratord wires the manager orchestrator (internal/manager)
// and its collaborators into a standalone HTTP process. Configuration is
// supplied entirely through flags and environment variables: this project
// defines config.Config as a plain value type and leaves loading it from a
// file to an external collaborator (see SPEC_FULL.md / DESIGN.md), so there
// is no config.Load here.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
