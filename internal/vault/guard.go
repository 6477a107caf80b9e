package vault

import "context"

type guardKey struct{ v *Vault }

// enter takes the vault lock and marks ctx so that collaborators calling
// back into this vault fail fast instead of deadlocking. A callback on a
// fresh context is caught by the callout flag.
func (v *Vault) enter(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(guardKey{v}) != nil || v.calling.Load() {
		return nil, nil, ErrReentrant
	}
	v.mu.Lock()
	return context.WithValue(ctx, guardKey{v}, struct{}{}), v.mu.Unlock, nil
}

// callout runs fn, a call into code outside the vault, with the vault
// marked busy. Any entry while it runs returns ErrReentrant.
func callout[T any](v *Vault, fn func() (T, error)) (T, error) {
	v.calling.Store(true)
	defer v.calling.Store(false)
	return fn()
}

func (v *Vault) runHook(fn func() error) error {
	_, err := callout(v, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}
