package version

import "fmt"

// Compatibility is the outcome of a compatibility check. The zero value is
// compatible; an incompatible result carries a human readable reason.
type Compatibility struct {
	reason string
}

// Compatible returns a successful result.
func Compatible() Compatibility {
	return Compatibility{}
}

// Incompatible returns a failed result with a formatted reason.
func Incompatible(format string, args ...any) Compatibility {
	reason := fmt.Sprintf(format, args...)
	if reason == "" {
		reason = "incompatible"
	}
	return Compatibility{reason: reason}
}

// OK reports whether the check succeeded.
func (c Compatibility) OK() bool {
	return c.reason == ""
}

// Reason returns why the check failed, or "" when it succeeded.
func (c Compatibility) Reason() string {
	return c.reason
}

// String returns "compatible" or the failure reason.
func (c Compatibility) String() string {
	if c.OK() {
		return "compatible"
	}
	return c.reason
}
