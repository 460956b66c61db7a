package store

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if a store's background flusher outlives its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
