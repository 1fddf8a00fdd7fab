package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNext_Table(t *testing.T) {
	tests := []struct {
		from     State
		trigger  Trigger
		canRetry bool
		want     State
	}{
		{StateQueued, TriggerDispatch, true, StateRunning},
		{StateQueued, TriggerCancel, true, StateCancelled},
		{StateRunning, TriggerSucceed, true, StateCompleted},
		{StateRunning, TriggerFail, true, StateQueued},
		{StateRunning, TriggerFail, false, StateFailed},
		{StateRunning, TriggerTimeout, true, StateQueued},
		{StateRunning, TriggerTimeout, false, StateFailed},
		{StateRunning, TriggerCancel, false, StateCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := Next(tt.from, tt.trigger, tt.canRetry)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNext_InvalidTransitions(t *testing.T) {
	for _, tc := range []struct {
		from    State
		trigger Trigger
	}{
		{StateQueued, TriggerSucceed},
		{StateQueued, TriggerFail},
		{StateQueued, TriggerTimeout},
		{StateRunning, TriggerDispatch},
	} {
		_, err := Next(tc.from, tc.trigger, true)
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestNext_TerminalRejectsEverything(t *testing.T) {
	triggers := []Trigger{TriggerDispatch, TriggerSucceed, TriggerFail, TriggerTimeout, TriggerCancel}
	for _, s := range []State{StateCompleted, StateFailed, StateCancelled} {
		require.True(t, s.Terminal())
		for _, tr := range triggers {
			got, err := Next(s, tr, true)
			require.ErrorIs(t, err, ErrTerminal)
			require.Equal(t, s, got)

			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, s, terr.From)
			require.Equal(t, tr, terr.Trigger)
		}
	}
}

func TestJobTransition_RetryCycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	spec, _, err := Validate(validBruteforce())
	require.NoError(t, err)
	j := New("job-1", spec, now)
	require.Equal(t, StateQueued, j.State)
	require.Equal(t, 1, j.Attempt)
	require.Equal(t, LaneStandard, j.Lane)

	starts := 0
	for {
		require.NoError(t, j.Transition(TriggerDispatch, now))
		starts++
		require.NotNil(t, j.StartedAt)
		require.NoError(t, j.Transition(TriggerFail, now))
		if j.State == StateFailed {
			break
		}
		require.Equal(t, StateQueued, j.State)
		require.LessOrEqual(t, j.Attempt, j.Spec.MaxAttempts)
	}

	require.Equal(t, 3, starts)
	require.Equal(t, 3, j.Attempt)
	require.NotNil(t, j.FinishedAt)

	err = j.Transition(TriggerCancel, now)
	require.ErrorIs(t, err, ErrTerminal)
	require.Equal(t, StateFailed, j.State)
}

func TestJobTransition_CompletionClearsError(t *testing.T) {
	now := time.Now()
	spec, _, err := Validate(validBruteforce())
	require.NoError(t, err)
	j := New("job-2", spec, now)
	require.NoError(t, j.Transition(TriggerDispatch, now))
	j.LastError = "process exited with code 255"
	j.Progress = 40
	require.NoError(t, j.Transition(TriggerSucceed, now.Add(time.Second)))

	require.Equal(t, StateCompleted, j.State)
	require.Empty(t, j.LastError)
	require.Equal(t, 100, j.Progress)
	require.Equal(t, now.Add(time.Second), *j.FinishedAt)
}

func TestJob_CloneIsIndependent(t *testing.T) {
	now := time.Now()
	spec, _, err := Validate(validBruteforce())
	require.NoError(t, err)
	j := New("job-3", spec, now)
	require.NoError(t, j.Transition(TriggerDispatch, now))

	c := j.Clone()
	c.Spec.Parameters["service"] = "ftp"
	*c.StartedAt = now.Add(time.Hour)

	require.Equal(t, "ssh", j.Spec.Parameters["service"])
	require.Equal(t, now, *j.StartedAt)
}

func TestSpec_Lane(t *testing.T) {
	require.Equal(t, LanePriority, Spec{Priority: true}.Lane())
	require.Equal(t, LaneStandard, Spec{}.Lane())
}
