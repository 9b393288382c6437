// Package clock abstracts wall time so timer-driven code can be tested.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}
