package embedstore

import "context"

// BeforeSave is called on a payload before it is encoded and stored.
// Return an error to abort the operation; nothing is written.
type BeforeSave interface {
	BeforeSave(ctx context.Context) error
}

// AfterSave is called on a payload after it has been successfully stored.
// Return an error to signal a post-save invariant failure.
type AfterSave interface {
	AfterSave(ctx context.Context) error
}

// AfterLoad is called on a payload after it has been decoded from a provider.
// Return an error to signal a post-load invariant failure.
type AfterLoad interface {
	AfterLoad(ctx context.Context) error
}

// callBeforeSave calls BeforeSave on value if T implements the interface.
func callBeforeSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(BeforeSave); ok {
		return h.BeforeSave(ctx)
	}
	return nil
}

// callAfterSave calls AfterSave on value if T implements the interface.
func callAfterSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterSave); ok {
		return h.AfterSave(ctx)
	}
	return nil
}

// callAfterSaveSlice calls AfterSave on each element if T implements the interface.
func callAfterSaveSlice[T any](ctx context.Context, values []T) error {
	for i := range values {
		if err := callAfterSave(ctx, &values[i]); err != nil {
			return err
		}
	}
	return nil
}

// callAfterLoad calls AfterLoad on value if T implements the interface.
func callAfterLoad[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterLoad); ok {
		return h.AfterLoad(ctx)
	}
	return nil
}
