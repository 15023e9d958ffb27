package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-sync/internal/app"
	"github.com/jrsteele09/go-session-sync/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type command struct {
	name           string
	usage          string
	attemptRefresh bool
	run            func(ctx context.Context, a *app.App, args []string) error
}

var commands = []command{
	{name: "login", usage: "login -email <email> -password <password>", run: loginCmd},
	{name: "register", usage: "register -email <email> -password <password>", run: registerCmd},
	{name: "logout", usage: "logout", run: logoutCmd},
	{name: "status", usage: "status", run: statusCmd},
	{name: "log-workout", usage: "log-workout -exercise <id> [-sets n] [-reps n] [-weight kg] [-minutes n] [-notes text]", run: logWorkoutCmd},
	{name: "workouts", usage: "workouts", run: workoutsCmd},
	{name: "sync", usage: "sync", run: syncCmd},
	{name: "watch", usage: "watch", attemptRefresh: true, run: watchCmd},
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	c := config.New()
	setupLogging(c.GetLogLevel())

	if len(os.Args) < 2 {
		displayAppname(c.GetAppName())
		usage()
		os.Exit(2)
	}

	if err := run(c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, colour(Red, "Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(c config.Config, name string, args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cmd, ok := findCommand(name)
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close local store")
		}
	}()

	a.Start(ctx, cmd.attemptRefresh)
	if err := cmd.run(ctx, a, args); err != nil {
		return err
	}

	// Let a drain started by this command finish before the store closes.
	a.Sync.Wait()
	return nil
}

func findCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func usage() {
	fmt.Println("Usage: fitsync <command> [flags]")
	fmt.Println()
	for _, cmd := range commands {
		fmt.Printf("  %s\n", cmd.usage)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
