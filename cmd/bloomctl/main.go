// Command bloomctl runs the bloom classifier and forecast engine offline.
// It is used to inspect season and phenology tables, classify a single
// reading, and generate or forecast monthly vegetation fixtures.
//
// Usage:
//
//	go run ./cmd/bloomctl classify --ndvi 0.82 --lat 35.68 --date 2024-04-10
//	go run ./cmd/bloomctl genmock --lat 35.68 --lon 139.69 --months 36 > history.json
//	go run ./cmd/bloomctl forecast --file history.json --months 12
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
