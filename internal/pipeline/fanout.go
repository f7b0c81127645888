package pipeline

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

// MirrorError reports mirrors that failed after the primary writer accepted
// the batch.
type MirrorError struct {
	Err error
}

func (e *MirrorError) Error() string { return "mirror write: " + e.Err.Error() }

func (e *MirrorError) Unwrap() error { return e.Err }

// FanOut writes every batch to the primary writer and then to each mirror.
// All writers are attempted. A primary failure is returned together with any
// mirror failures; mirror failures alone come back as a *MirrorError.
type FanOut struct {
	primary PointWriter
	mirrors []PointWriter
}

// NewFanOut returns primary unchanged when there are no mirrors.
func NewFanOut(primary PointWriter, mirrors ...PointWriter) PointWriter {
	if len(mirrors) == 0 {
		return primary
	}
	return &FanOut{primary: primary, mirrors: mirrors}
}

func (f *FanOut) WritePoints(ctx context.Context, points []domain.Point) error {
	primaryErr := f.primary.WritePoints(ctx, points)

	var mirrorErrs *multierror.Error
	for _, w := range f.mirrors {
		if err := w.WritePoints(ctx, points); err != nil {
			mirrorErrs = multierror.Append(mirrorErrs, err)
		}
	}

	if primaryErr != nil {
		result := multierror.Append(nil, primaryErr)
		if mirrorErrs != nil {
			result = multierror.Append(result, mirrorErrs.Errors...)
		}
		return result
	}
	if err := mirrorErrs.ErrorOrNil(); err != nil {
		return &MirrorError{Err: err}
	}
	return nil
}
