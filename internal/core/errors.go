package core

import (
	"fmt"
	"strings"
)

// ConfigError indicates missing or invalid configuration (credentials,
// model artifact). It is fatal before any remote call is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// RemoteError indicates a non-2xx response or a protocol-level error
// payload from the remote mail store. No retries are performed anywhere:
// a transient failure aborts the whole run.
type RemoteError struct {
	Method  string
	Payload string
}

func (e *RemoteError) Error() string {
	if e.Payload == "" {
		return fmt.Sprintf("remote error in %s", e.Method)
	}
	return fmt.Sprintf("remote error in %s: %s", e.Method, e.Payload)
}

// MutationError indicates a bulk update the server partially rejected.
// Batches applied before the failing one are not rolled back.
type MutationError struct {
	Method string
	IDs    []string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s rejected for %d message(s): %s",
		e.Method, len(e.IDs), strings.Join(e.IDs, ", "))
}
