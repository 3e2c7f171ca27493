package main

import (
	"context"
	"fmt"
	"os"

	"github.com/soundbay/backend/internal/logger"
)

func main() {
	a := newApp(os.Stdout)
	err := newRootCmd(a).ExecuteContext(context.Background())
	// PersistentPostRun is skipped when a command fails
	if cerr := a.close(context.Background()); err == nil {
		err = cerr
	}
	_ = logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
