package main

import (
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: worker advise <#RRGGBB|imagePath> [targetRole]")
	}

	switch os.Args[1] {
	case "advise":
		RunAdvise(os.Args[2:])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
