// Package output renders command results as tables, JSON or YAML and turns
// authentication errors into short hints for the terminal.
package output
