// Package mvwatchdog detects a stuck engine.
//
// A long-lived goroutine opts in through [*Watchdog.Monitor]
// and must acknowledge each periodic [Signal] from its main loop.
// If a signal is not accepted and acknowledged within the configured timeout,
// the watchdog cancels the context it returned from [New],
// which shuts down everything derived from it.
package mvwatchdog
