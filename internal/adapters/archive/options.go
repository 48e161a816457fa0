package archive

import (
	"io/fs"
	"time"

	"github.com/okian/aiweather/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLocation sets the zone used to name hour directories and to parse
// them back when metadata is missing.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger used by the Store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFileMode sets the permission bits for written files.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Store) {
		if mode != 0 {
			s.fileMode = mode
		}
	}
}
