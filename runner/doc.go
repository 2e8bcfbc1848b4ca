// Package runner provides the value types shared between the launcher and
// the supervision loop: byte sizes, the exceeded-limit classification and
// the final result written to the status descriptor.
package runner
