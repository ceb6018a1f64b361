// Package runner executes host commands for the broker control layer. A
// nonzero exit is a Result, not an error; errors mean the command could not
// start or ran past its timeout. Fake scripts responses for tests.
package runner
