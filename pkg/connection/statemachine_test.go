package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreplane/coreplane/pkg/store"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    store.ConnectionStatus
		to      store.ConnectionStatus
		allowed bool
	}{
		{store.ConnectionPending, store.ConnectionCodeReceived, true},
		{store.ConnectionPending, store.ConnectionErrorOAuth, true},
		{store.ConnectionPending, store.ConnectionActive, false},
		{store.ConnectionPending, store.ConnectionErrorChannel, false},
		{store.ConnectionCodeReceived, store.ConnectionActive, true},
		{store.ConnectionCodeReceived, store.ConnectionErrorOAuth, true},
		{store.ConnectionCodeReceived, store.ConnectionErrorChannel, true},
		{store.ConnectionCodeReceived, store.ConnectionPending, false},
		{store.ConnectionActive, store.ConnectionErrorChannel, false},
		{store.ConnectionActive, store.ConnectionPending, false},
		{store.ConnectionErrorOAuth, store.ConnectionPending, false},
		{store.ConnectionErrorChannel, store.ConnectionCodeReceived, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestTransition_AppliesLegalChange(t *testing.T) {
	conn := &store.Connection{Status: store.ConnectionPending}

	err := Transition(conn, store.ConnectionCodeReceived)
	assert.NoError(t, err)
	assert.Equal(t, store.ConnectionCodeReceived, conn.Status)
}

func TestTransition_RejectsSkippedState(t *testing.T) {
	conn := &store.Connection{Status: store.ConnectionPending}

	err := Transition(conn, store.ConnectionActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	// The connection is left untouched.
	assert.Equal(t, store.ConnectionPending, conn.Status)
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []store.ConnectionStatus{
		store.ConnectionActive,
		store.ConnectionErrorOAuth,
		store.ConnectionErrorChannel,
	} {
		conn := &store.Connection{Status: terminal}
		err := Transition(conn, store.ConnectionPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}
