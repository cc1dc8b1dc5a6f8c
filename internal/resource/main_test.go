package resource_test

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// Debug events (opened, closed, fetched) would drown the test output.
func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	os.Exit(m.Run())
}
