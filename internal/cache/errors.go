package cache

import (
	"errors"
	"fmt"

	"github.com/csverma610/medkit/internal/schema"
)

var (
	// ErrStorageUnavailable reports that the module store could not be opened
	// or written. The orchestrator logs it and continues without caching.
	ErrStorageUnavailable = errors.New("cache: storage unavailable")

	// ErrCapacityExceeded reports a write rejected because the store is full.
	ErrCapacityExceeded = fmt.Errorf("%w: capacity exceeded", ErrStorageUnavailable)

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = fmt.Errorf("%w: store closed", ErrStorageUnavailable)

	// ErrStaleEntry marks an entry written under a different schema version.
	// It is a decode failure, so it is regenerated like any other.
	ErrStaleEntry = fmt.Errorf("%w: stale schema version", schema.ErrDecode)

	// ErrCorruptEntry marks stored bytes that could not be decompressed.
	ErrCorruptEntry = fmt.Errorf("%w: corrupt entry", schema.ErrDecode)
)
