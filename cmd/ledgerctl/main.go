package main

import (
	"context"
	"flag"
	"os"
	"path"
	"time"

	"github.com/google/subcommands"

	"github.com/pocketledger/pocketledger/internal/ctl"
	"github.com/pocketledger/pocketledger/internal/logging"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warn"
	}
	env := ctl.PostgresEnv(logging.New(logLevel), 30*time.Second)
	for _, c := range ctl.Commands(env) {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
