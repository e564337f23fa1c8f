// Command pluginiq-admin runs operator tasks directly against the platform
// database: tenant signup, license grants and expiry sweeps, plugin listing
// and token issuance.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
