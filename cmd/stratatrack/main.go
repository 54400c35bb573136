// Command stratatrack runs the metric tracking sync daemon.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dalemusser/stratatrack/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		fmt.Fprintf(os.Stderr, "stratatrack: %v\n", err)
		os.Exit(1)
	}
}
