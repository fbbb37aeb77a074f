// Package app contains the core application logic. It loads build files,
// wires the rule set into an engine Core and a Scheduler, runs the requested
// roots and reports their outcomes, decoupled from any specific entrypoint
// like a CLI.
package app
