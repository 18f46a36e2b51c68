package onnx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	up                  bool
	inits, destroys     int
	initErr, destroyErr error
}

func (r *fakeRuntime) env() *environment {
	return &environment{
		initialized: func() bool { return r.up },
		init: func() error {
			r.inits++
			if r.initErr != nil {
				return r.initErr
			}
			r.up = true
			return nil
		},
		destroy: func() error {
			r.destroys++
			if r.destroyErr != nil {
				return r.destroyErr
			}
			r.up = false
			return nil
		},
	}
}

func TestEnvironmentOwnedRuntime(t *testing.T) {
	rt := &fakeRuntime{}
	env := rt.env()

	require.NoError(t, env.acquire())
	require.NoError(t, env.acquire())
	assert.Equal(t, 1, rt.inits)

	env.release()
	assert.True(t, rt.up, "Runtime darf mit einem verbleibenden Nutzer nicht zerstoert werden")

	env.release()
	assert.False(t, rt.up)
	assert.Equal(t, 1, rt.destroys)

	env.release()
	assert.Equal(t, 1, rt.destroys, "ueberzaehliges release")
}

func TestEnvironmentForeignRuntime(t *testing.T) {
	rt := &fakeRuntime{up: true}
	env := rt.env()

	require.NoError(t, env.acquire())
	require.NoError(t, env.acquire())
	env.release()
	env.release()

	assert.Zero(t, rt.inits)
	assert.Zero(t, rt.destroys, "fremd initialisierte Runtime wurde zerstoert")
	assert.True(t, rt.up)
}

func TestEnvironmentInitFailure(t *testing.T) {
	rt := &fakeRuntime{initErr: errors.New("no shared library")}
	env := rt.env()

	require.ErrorIs(t, env.acquire(), rt.initErr)
	env.release()
	assert.Zero(t, rt.destroys)

	rt.initErr = nil
	require.NoError(t, env.acquire())
	env.release()
	assert.Equal(t, 2, rt.inits)
	assert.Equal(t, 1, rt.destroys)
}

func TestEnvironmentDestroyFailureKeepsOwnership(t *testing.T) {
	rt := &fakeRuntime{destroyErr: errors.New("busy")}
	env := rt.env()

	require.NoError(t, env.acquire())
	env.release()
	assert.True(t, rt.up)

	rt.destroyErr = nil
	require.NoError(t, env.acquire())
	assert.Equal(t, 1, rt.inits, "Runtime ist noch initialisiert")
	env.release()
	assert.False(t, rt.up)
	assert.Equal(t, 2, rt.destroys)
}
