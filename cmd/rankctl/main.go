// Command rankctl imports ranking sources, runs aggregations and manages the
// document store schema and indexes.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
