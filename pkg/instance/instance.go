package instance

import "os"

const envKey = "STOREFRONT_INSTANCE_ID"

// ID names this worker process in logs. STOREFRONT_INSTANCE_ID wins, then the
// hostname, then "<kind>-0".
func ID(kind string) string {
	if id := os.Getenv(envKey); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return kind + "@" + host
	}
	return kind + "-0"
}
