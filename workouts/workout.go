package workouts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one exercise performed during a workout.
type Entry struct {
	ExerciseID      string  `json:"exerciseId"`
	Sets            int     `json:"sets"`
	Reps            int     `json:"reps"`
	Weight          float64 `json:"weight"`
	DurationSeconds int     `json:"durationSeconds"`
	Notes           string  `json:"notes,omitempty"`
}

// Workout is the write body sent when a workout is completed. Workouts are append-only.
type Workout struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Entries     []Entry   `json:"entries"`
}

// Record is a workout as stored by the server.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	Entries     []Entry   `json:"entries"`
}

var ErrNoEntries = errors.New("workout has no entries")

// Validate checks the workout has entries and a consistent time range.
func (w Workout) Validate() error {
	if len(w.Entries) == 0 {
		return ErrNoEntries
	}
	if !w.StartedAt.IsZero() && !w.CompletedAt.IsZero() && w.CompletedAt.Before(w.StartedAt) {
		return errors.New("workout completed before it started")
	}
	for i, e := range w.Entries {
		if err := e.validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

func (e Entry) validate() error {
	switch {
	case e.ExerciseID == "":
		return errors.New("exercise id is required")
	case e.Sets < 0, e.Reps < 0, e.DurationSeconds < 0:
		return errors.New("sets, reps and duration cannot be negative")
	case e.Weight < 0:
		return errors.New("weight cannot be negative")
	}
	return nil
}

// Payload validates the workout and encodes it as a request body.
func (w Workout) Payload() (json.RawMessage, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Decode parses and validates a payload.
func Decode(payload []byte) (Workout, error) {
	var w Workout
	if err := json.Unmarshal(payload, &w); err != nil {
		return Workout{}, fmt.Errorf("invalid workout payload: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Workout{}, err
	}
	return w, nil
}
