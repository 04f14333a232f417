package statsserver

import (
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// ServerBuilderOption is a functional option for configuring a Server.
type ServerBuilderOption func(*server)

// WithLogger sets the server logger.
func WithLogger(log logging.Logger) ServerBuilderOption {
	return func(s *server) {
		s.log = logging.OrNop(log)
	}
}

// WithMaxWriters bounds the number of clients written to concurrently.
//
// Parameters:
//   - n: the maximum number of concurrent writes (minimum 1)
//
// Returns:
//   - ServerBuilderOption: option function to apply
func WithMaxWriters(n int) ServerBuilderOption {
	return func(s *server) {
		s.maxWriters = int64(n)
	}
}

// WithQueueSize sets how many messages may wait for broadcast before new
// ones are dropped.
func WithQueueSize(n int) ServerBuilderOption {
	return func(s *server) {
		s.queueSize = n
	}
}

// WithFrameInterval publishes only every n-th frame.
//
// Parameters:
//   - n: the interval in frames (0 and 1 publish every frame)
//
// Returns:
//   - ServerBuilderOption: option function to apply
func WithFrameInterval(n uint64) ServerBuilderOption {
	return func(s *server) {
		s.frameInterval = max(n, 1)
	}
}

// WithWriteTimeout sets the per-message write deadline.
func WithWriteTimeout(d time.Duration) ServerBuilderOption {
	return func(s *server) {
		s.writeTimeout = d
	}
}
