package box

import "context"

// Provider reads and writes the remote automation box.
//
// Every call may fail independently of the others. Implementations are
// responsible for bounding the duration of each call (for example with an HTTP
// client timeout); callers do not enforce one. A Provider is only ever invoked
// from one goroutine at a time by the communicator, so implementations do not
// need to be safe for concurrent use unless they are shared elsewhere.
type Provider interface {
	ReadStatus(ctx context.Context) (Status, error)
	WriteMode(ctx context.Context, mode HouseMode) error
}

// ProviderFunc adapts plain functions to the Provider interface.
type ProviderFunc struct {
	Read  func(ctx context.Context) (Status, error)
	Write func(ctx context.Context, mode HouseMode) error
}

// ReadStatus calls Read.
func (p ProviderFunc) ReadStatus(ctx context.Context) (Status, error) {
	return p.Read(ctx)
}

// WriteMode calls Write when set.
func (p ProviderFunc) WriteMode(ctx context.Context, mode HouseMode) error {
	if p.Write == nil {
		return nil
	}
	return p.Write(ctx, mode)
}
