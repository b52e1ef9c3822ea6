// Package clock provides the Clock port spec.md §9 names as a required
// collaborator, so the Watcher's timeout detection and the Janitor's
// snapshot timestamps are deterministic under test.
package clock

import "time"

// Real is the production Clock, backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }
