package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-sync/connectivity"
	"github.com/jrsteele09/go-session-sync/internal/app"
	"github.com/jrsteele09/go-session-sync/outbox"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/jrsteele09/go-session-sync/workouts"
)

func credentialFlags(name string, args []string) (email, password string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if email == "" || password == "" {
		return "", "", errors.New("-email and -password are required")
	}
	return email, password, nil
}

func loginCmd(ctx context.Context, a *app.App, args []string) error {
	email, password, err := credentialFlags("login", args)
	if err != nil {
		return err
	}
	user, err := a.Session.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", colour(Green, user.Email), user.Role)
	return nil
}

func registerCmd(ctx context.Context, a *app.App, args []string) error {
	email, password, err := credentialFlags("register", args)
	if err != nil {
		return err
	}
	user, err := a.Session.Register(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s\n", colour(Green, user.Email))
	return nil
}

func logoutCmd(ctx context.Context, a *app.App, _ []string) error {
	a.Session.Logout(ctx)
	if err := a.Session.State().LastError; err != nil {
		fmt.Println(colour(Yellow, "Signed out locally; server logout failed: "+err.Error()))
		return nil
	}
	fmt.Println("Signed out")
	return nil
}

func statusCmd(ctx context.Context, a *app.App, _ []string) error {
	state := a.Session.State()
	phase := string(state.Phase)
	fmt.Printf("Session:  %s\n", colour(phaseColors[phase], phase))
	if state.User != nil {
		fmt.Printf("User:     %s (%s)\n", state.User.Email, state.User.Role)
	}
	if state.Tokens != nil {
		token := state.Tokens.OAuth2Token()
		if token.Expiry.IsZero() {
			fmt.Println("Access:   opaque token")
		} else {
			fmt.Printf("Access:   expires %s\n", token.Expiry.Local().Format(time.RFC1123))
		}
	}
	if state.LastError != nil {
		fmt.Printf("Last err: %s\n", colour(Red, state.LastError.Error()))
	}

	network := connectivity.WentOffline
	if a.Network.Online() {
		network = connectivity.WentOnline
	}
	fmt.Printf("Network:  %s\n", network)

	pending, err := a.Outbox.Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Pending:  %d workout(s)\n", len(pending))
	return nil
}

func logWorkoutCmd(ctx context.Context, a *app.App, args []string) error {
	var (
		entry   workouts.Entry
		minutes int
	)
	fs := flag.NewFlagSet("log-workout", flag.ContinueOnError)
	fs.StringVar(&entry.ExerciseID, "exercise", "", "exercise id")
	fs.IntVar(&entry.Sets, "sets", 0, "number of sets")
	fs.IntVar(&entry.Reps, "reps", 0, "reps per set")
	fs.Float64Var(&entry.Weight, "weight", 0, "weight in kg")
	fs.IntVar(&minutes, "minutes", 0, "duration in minutes")
	fs.StringVar(&entry.Notes, "notes", "", "free-form notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entry.DurationSeconds = minutes * 60

	now := time.Now().UTC()
	w := workouts.Workout{
		StartedAt:   now.Add(-time.Duration(minutes) * time.Minute),
		CompletedAt: now,
		Entries:     []workouts.Entry{entry},
	}

	res, err := a.LogWorkout(ctx, w)
	if err != nil {
		return err
	}
	switch res.Status {
	case outbox.Delivered:
		fmt.Println(colour(Green, "Workout saved."))
	case outbox.Queued:
		fmt.Println(colour(Yellow, "Workout saved offline. It will sync automatically."))
	}
	return nil
}

func workoutsCmd(ctx context.Context, a *app.App, _ []string) error {
	records, err := a.Workouts(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No workouts yet")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %s\n", colour(Cyan, r.CompletedAt.Local().Format("2006-01-02 15:04")), r.ID)
		for _, e := range r.Entries {
			fmt.Printf("    %-16s %dx%d @ %.1fkg %ds\n", e.ExerciseID, e.Sets, e.Reps, e.Weight, e.DurationSeconds)
		}
	}
	return nil
}

func syncCmd(ctx context.Context, a *app.App, _ []string) error {
	if !a.Network.Online() {
		return errors.New("offline, nothing synced")
	}
	a.Sync.Wait()
	result, err := a.Outbox.Drain(ctx)
	fmt.Printf("Delivered %d, failed %d, remaining %d\n", result.Delivered, result.Failed, result.Remaining)
	return err
}

func watchCmd(ctx context.Context, a *app.App, _ []string) error {
	displayAppname("fitsync")
	detach := a.Session.Subscribe(func(s sessions.State) {
		phase := string(s.Phase)
		fmt.Printf("[%s] session %s\n", time.Now().Format(time.Kitchen), colour(phaseColors[phase], phase))
	})
	defer detach()

	detachNetwork := a.Network.Subscribe(func(e connectivity.Event) {
		fmt.Printf("[%s] network %s\n", time.Now().Format(time.Kitchen), e)
	})
	defer detachNetwork()

	<-ctx.Done()
	return nil
}
