// timezen-gateway is the offline-first caching gateway for the TimeZen
// college companion app. It proxies app and backend traffic with a
// network-first strategy, keeps versioned response caches for offline use,
// and exposes the control and state API the app pages rely on.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "timezen-gateway",
		Short: "Offline-first caching gateway for the TimeZen app",
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
