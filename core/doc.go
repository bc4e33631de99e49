// Package core defines the shared data model of the agent orchestration
// subsystem: messages and their typed parts, conversations, streaming events,
// request scoping and the error taxonomy. Higher level packages (engine,
// tool, model, server) depend on core; core depends on nothing above logging.
package core
