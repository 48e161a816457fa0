package archive

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrNoCycle      = errors.New("no archived cycle")
	ErrArchiveWrite = errors.New("archive write failed")
	ErrArchiveRead  = errors.New("archive read failed")
)
