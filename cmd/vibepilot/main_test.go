// File: cmd/vibepilot/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			path    string
			content []byte
			code    = -1
		)
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, content = name, data
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("planner exploded")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(content), "panic: planner exploded")
		assert.Contains(t, string(content), "goroutine")
		assert.Equal(t, 2, code)
	})

	t.Run("falls back to stderr when the log cannot be written", func(t *testing.T) {
		code := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, code)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		require.False(t, called)
	})
}
