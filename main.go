package main

import (
	"fmt"
	"os"

	"ojomine/internal/server"
)

func main() {
	mode := "api"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	switch mode {
	case "api":
		server.ApiInit()
	case "worker":
		server.WorkerInit()
	case "batch":
		server.BatchInit()
	default:
		fmt.Println("usage: ojomine [api|worker|batch]")
		os.Exit(2)
	}
}
