package interfaces

// -----------------------------------------------------------------------------
// IProxyManager supplies the proxy and user agent for each browser launch.
// -----------------------------------------------------------------------------

type IProxyManager interface {

	// GetCurrentProxy returns the currently selected proxy URL (or empty if none).
	GetCurrentProxy() (string, error)

	// RotateProxy switches to the next available proxy.
	RotateProxy()

	// HasProxies returns true if there are proxies configured.
	HasProxies() bool

	// GetUserAgent returns the User-Agent for the next launch.
	GetUserAgent() string
}
