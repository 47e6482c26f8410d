// Package task provides the unit-of-work primitives that scopes are built
// on: spawning a schedulable task, administrative cancellation with an
// outstanding-request counter, completion observers, and discovery of the
// task a context belongs to.
//
// Cancellation is counted. Every Cancel increments the task's
// outstanding-cancellation counter and cancels its current context epoch;
// Uncancel decrements the counter and, when it reaches zero while the task
// is still running, renews the epoch so a retracted cancellation does not
// leave the task with a permanently dead context. Scopes use this to take
// back a cancellation they inflicted on their own parent without masking
// one requested from outside.
package task
