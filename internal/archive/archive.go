// Package archive selects the backend that keeps exported report documents.
package archive

import (
	"context"
	"fmt"
	"strings"

	"capresearch/internal/archive/core"
	"capresearch/internal/infra/archive/fs"
	"capresearch/internal/infra/archive/memory"
	"capresearch/internal/infra/archive/s3"
)

type (
	Driver           = core.Driver
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	S3Config         = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)

// Options configures Open.
type Options struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the archive named by opts.Driver. An empty driver means fs.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(opts.Driver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(opts.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown archive driver %s", opts.Driver)
	}
}
