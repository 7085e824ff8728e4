package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LynnColeArt/accel/cmd/accel/cli"
)

func main() {
	if err := cli.New().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
