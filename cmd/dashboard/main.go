// Command dashboard prepares the effectifs dataset and serves the dashboard.
//
// Usage:
//
//	dashboard serve            # HTTP server, initializes the data in the background when needed
//	dashboard prepare          # download, clean and load synchronously
//	dashboard clean-labels     # shorten long patho_niv1 labels
//	dashboard verify-labels    # list stored labels
//	dashboard validate-config  # check a config file and exit
package main

import (
	"context"
	"fmt"
	"os"

	// register all backends with the storage factory.
	_ "effectifs/internal/storage/all"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}
