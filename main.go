package main

import (
	"log"
	"os"

	"github.com/fieldquest/fieldquest-go/cmd"
	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		os.Exit(1)
	}
}
