// ABOUTME: Product and version identification
// ABOUTME: Reported in status messages, mDNS TXT records and the TUIs
package version

const (
	Product      = "netjam"
	Manufacturer = "Soundwire"
	Version      = "0.3.0"
)

// String is the user-facing product/version pair
func String() string {
	return Product + " " + Version
}
