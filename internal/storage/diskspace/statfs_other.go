//go:build !linux && !darwin && !freebsd

package diskspace

// Usage на этой платформе не поддерживается.
func (e *StatfsEstimator) Usage(string) (Usage, error) {
	return Usage{}, ErrUnavailable
}
