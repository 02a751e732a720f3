// Command envsim solves, plans and inspects envelope solves.
package main

import (
	"context"

	"github.com/tebeka/atexit"
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
