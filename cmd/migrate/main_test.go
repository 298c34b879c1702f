package main

import (
	"errors"
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

type fakeMigrator struct {
	upErr    error
	steps    []int
	forced   []int
	version  uint
	noneYet  bool
	upCalled bool
}

func (f *fakeMigrator) Up() error {
	f.upCalled = true
	if f.upErr == nil {
		f.version = 1
	}
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	if f.noneYet {
		return 0, false, migrate.ErrNilVersion
	}
	return f.version, false, nil
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func TestRunDefaultsToUp(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(nil, m, quietLogger()))
	assert.True(t, m.upCalled)
}

func TestRunUpToleratesNoChange(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 1}
	assert.NoError(t, run([]string{"up"}, m, quietLogger()))

	m = &fakeMigrator{upErr: errors.New("dirty database")}
	assert.Error(t, run([]string{"up"}, m, quietLogger()))
}

func TestRunDownStepsBackwards(t *testing.T) {
	m := &fakeMigrator{version: 1}
	require.NoError(t, run([]string{"down", "1"}, m, quietLogger()))
	assert.Equal(t, []int{-1}, m.steps)

	assert.Error(t, run([]string{"down"}, m, quietLogger()))
	assert.Error(t, run([]string{"down", "0"}, m, quietLogger()))
	assert.Error(t, run([]string{"down", "x"}, m, quietLogger()))
}

func TestRunForceAndVersion(t *testing.T) {
	m := &fakeMigrator{version: 1}
	require.NoError(t, run([]string{"force", "1"}, m, quietLogger()))
	assert.Equal(t, []int{1}, m.forced)

	assert.NoError(t, run([]string{"version"}, &fakeMigrator{noneYet: true}, quietLogger()))
	assert.Error(t, run([]string{"sideways"}, m, quietLogger()))
}
