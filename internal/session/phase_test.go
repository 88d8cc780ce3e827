package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseSelectingFiles, true},
		{PhaseIdle, PhaseUploading, false},
		{PhaseIdle, PhaseActive, false},
		{PhaseSelectingFiles, PhaseSelectingFiles, true},
		{PhaseSelectingFiles, PhaseUploading, true},
		{PhaseSelectingFiles, PhaseIdle, true},
		{PhaseSelectingFiles, PhaseActive, false},
		{PhaseUploading, PhaseActive, true},
		{PhaseUploading, PhaseSelectingFiles, true},
		{PhaseUploading, PhaseIdle, false},
		{PhaseActive, PhaseEndingSession, true},
		{PhaseActive, PhaseIdle, false},
		{PhaseActive, PhaseSelectingFiles, false},
		{PhaseEndingSession, PhaseIdle, true},
		{PhaseEndingSession, PhaseActive, true},
		{PhaseEndingSession, PhaseUploading, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionRejectsMissingEdge(t *testing.T) {
	st := state{phase: PhaseIdle}

	err := st.transition(PhaseActive)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, PhaseIdle, st.phase)
}

func TestPhaseText(t *testing.T) {
	out, err := json.Marshal(map[string]Phase{"phase": PhaseEndingSession})
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"ending_session"}`, string(out))

	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("uploading")))
	assert.Equal(t, PhaseUploading, p)

	assert.Error(t, p.UnmarshalText([]byte("paused")))
	assert.Equal(t, "phase(42)", Phase(42).String())
}
