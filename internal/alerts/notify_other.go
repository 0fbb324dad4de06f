//go:build !linux && !darwin

package alerts

type noopNotifier struct{}

func (noopNotifier) Notify(RiskAlert) {}

// NewPlatformNotifier returns a no-op notifier on platforms without a
// supported desktop notification command.
func NewPlatformNotifier(bool) Notifier {
	return noopNotifier{}
}
