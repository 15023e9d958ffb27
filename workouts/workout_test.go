package workouts_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-sync/workouts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkout() workouts.Workout {
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	return workouts.Workout{
		StartedAt:   start,
		CompletedAt: start.Add(45 * time.Minute),
		Entries: []workouts.Entry{
			{ExerciseID: "squat", Sets: 5, Reps: 5, Weight: 100},
			{ExerciseID: "row", DurationSeconds: 600, Notes: "easy pace"},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validWorkout().Validate())

	tests := []struct {
		name   string
		mutate func(w *workouts.Workout)
	}{
		{"no entries", func(w *workouts.Workout) { w.Entries = nil }},
		{"missing exercise", func(w *workouts.Workout) { w.Entries[0].ExerciseID = "" }},
		{"negative reps", func(w *workouts.Workout) { w.Entries[0].Reps = -1 }},
		{"negative weight", func(w *workouts.Workout) { w.Entries[1].Weight = -2.5 }},
		{"completed before start", func(w *workouts.Workout) { w.CompletedAt = w.StartedAt.Add(-time.Minute) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorkout()
			tt.mutate(&w)
			assert.Error(t, w.Validate())
		})
	}
}

func TestValidateAllowsMissingTimes(t *testing.T) {
	w := validWorkout()
	w.StartedAt = time.Time{}
	assert.NoError(t, w.Validate())
}

func TestPayloadDecode(t *testing.T) {
	payload, err := validWorkout().Payload()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"exerciseId":"squat"`)

	decoded, err := workouts.Decode(payload)
	require.NoError(t, err)
	assert.True(t, decoded.StartedAt.Equal(validWorkout().StartedAt))
	assert.Len(t, decoded.Entries, 2)

	_, err = workouts.Decode([]byte(`{"entries":[]}`))
	assert.ErrorIs(t, err, workouts.ErrNoEntries)

	_, err = workouts.Decode([]byte(`not json`))
	assert.Error(t, err)
}
