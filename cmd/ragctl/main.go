// Command ragctl manages the knowledge base and asks questions, either in
// process or against a running API server.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
