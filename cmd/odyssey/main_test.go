package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/odyssey-erp/odyssey-console/testing"
)

func TestServeSkipsInTestMode(t *testing.T) {
	assert.Equal(t, 0, run(nil))
	assert.Equal(t, 0, run([]string{"serve"}))
}

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 1, run([]string{"worker"}))
}

func TestSessionHelp(t *testing.T) {
	assert.Equal(t, 0, run([]string{"session", "--help"}))
}
