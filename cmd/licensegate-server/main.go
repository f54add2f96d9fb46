package main

import (
	"fmt"
	"os"

	"licensegate/internal/app"
)

var version = "dev"

func main() {
	app.Version = version

	application, err := app.NewApplication(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "licensegate-server: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		application.Logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
