package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBackWhenUninitialized(t *testing.T) {
	singleton.Store(nil)
	assert.NotNil(t, get())
}

func TestInitializeInstallsSingleton(t *testing.T) {
	Initialize()
	assert.NotNil(t, singleton.Load())
	Debugw("hello", "k", "v")
	Infow("hello", "k", "v")
	Warnw("hello", "k", "v")
	Errorw("hello", "k", "v")
}

func TestInitializeDevelopment(t *testing.T) {
	InitializeDevelopment()
	assert.NotNil(t, singleton.Load())
}
