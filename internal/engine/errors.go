package engine

import "fmt"

// ConfigurationError marks a run that could not start: bad budget or missing
// target inputs. No attempt is made and nothing is persisted.
type ConfigurationError struct {
	Target string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for target %q: %s", e.Target, e.Reason)
}
