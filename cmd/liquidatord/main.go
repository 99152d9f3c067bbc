package main

import (
	"log"

	liquidatord "solvkeep/services/liquidatord"
)

func main() {
	if err := liquidatord.Main(); err != nil {
		log.Fatalf("liquidatord: %v", err)
	}
}
