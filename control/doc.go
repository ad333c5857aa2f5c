// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for hioload-wire.
//
// Provides concurrent-safe state handling primitives including:
//   - Validated server configuration with defaults
//   - Immutable snapshot config reads and atomic updates with reload listeners
//   - Protocol event counters
//   - Debug probe registration and state export
package control
