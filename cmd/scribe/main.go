package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	// An interrupted command already stopped on its own terms; anything
	// else gets reported.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "scribe:", err)
	}
	os.Exit(1)
}
