// ABOUTME: Version information for framepace
// ABOUTME: Reported in stats messages, mDNS TXT records and CLI output
package version

const (
	// Version is the framepace release.
	Version = "0.3.0"

	// Product is the product name.
	Product = "framepace"

	// Manufacturer is the maintainer.
	Manufacturer = "Resonate Protocol"
)

// String returns the product and version.
func String() string {
	return Product + " " + Version
}
