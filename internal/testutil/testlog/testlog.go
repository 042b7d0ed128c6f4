package testlog

import (
	"testing"

	"github.com/danmuck/sectun/internal/logging"
	"github.com/rs/zerolog"
)

// Start returns a logger that writes through t.Log so output is attached to
// the running test and suppressed on success.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logger := logging.ConfigFromEnv(logging.ProfileTest).Build(zerolog.NewTestWriter(t))
	logger.Info().Str("test", t.Name()).Msg("test start")
	return logger
}
