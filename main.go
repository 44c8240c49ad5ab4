package main

import (
	"os"

	"github.com/AegisDefend/aegis-installer/cmd"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

var version = "1.0.0"

func main() {
	if err := cmd.Execute(version); err != nil {
		logger.Fatalf("Error: %v", err)
		os.Exit(1)
	}
}
