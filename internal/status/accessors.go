package status

import "context"

// GetString returns the string value of key, or ErrAbsent.
func (b *Buffer) GetString(ctx context.Context, key string) (v string, err error) {
	err = b.WithLock(ctx, func() error {
		_, field, found := b.doc.find(key)
		if !found {
			return ErrAbsent
		}
		v = unquoteString(field)
		return nil
	})
	return v, err
}

// PutString stores key=value as a quoted-string card.
func (b *Buffer) PutString(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return b.WithLock(ctx, func() error {
		return b.doc.put(key, quoteString(value), "")
	})
}

// GetInt32 returns the int32 value of key, or ErrAbsent.
func (b *Buffer) GetInt32(ctx context.Context, key string) (v int32, err error) {
	var n int64
	err = b.withNumber(ctx, key, func(field string) error {
		var perr error
		n, perr = parseInt(field)
		return perr
	})
	return int32(n), err
}

// PutInt32 stores key=value as a right-justified decimal card.
func (b *Buffer) PutInt32(ctx context.Context, key string, value int32) error {
	return b.putNumber(ctx, key, formatInt(int64(value)))
}

// GetInt64 returns the int64 value of key, or ErrAbsent.
func (b *Buffer) GetInt64(ctx context.Context, key string) (v int64, err error) {
	err = b.withNumber(ctx, key, func(field string) error {
		var perr error
		v, perr = parseInt(field)
		return perr
	})
	return v, err
}

// PutInt64 stores key=value as a right-justified decimal card.
func (b *Buffer) PutInt64(ctx context.Context, key string, value int64) error {
	return b.putNumber(ctx, key, formatInt(value))
}

// GetFloat32 returns the float32 value of key, or ErrAbsent.
func (b *Buffer) GetFloat32(ctx context.Context, key string) (v float32, err error) {
	var f float64
	err = b.withNumber(ctx, key, func(field string) error {
		var perr error
		f, perr = parseFloat(field, 32)
		return perr
	})
	return float32(f), err
}

// PutFloat32 stores key=value as a FITS-style floating card.
func (b *Buffer) PutFloat32(ctx context.Context, key string, value float32) error {
	return b.putNumber(ctx, key, formatFloat(float64(value), 32))
}

// GetFloat64 returns the float64 value of key, or ErrAbsent.
func (b *Buffer) GetFloat64(ctx context.Context, key string) (v float64, err error) {
	err = b.withNumber(ctx, key, func(field string) error {
		var perr error
		v, perr = parseFloat(field, 64)
		return perr
	})
	return v, err
}

// PutFloat64 stores key=value as a FITS-style floating card.
func (b *Buffer) PutFloat64(ctx context.Context, key string, value float64) error {
	return b.putNumber(ctx, key, formatFloat(value, 64))
}

// Delete removes key if present; reports whether it was found.
func (b *Buffer) Delete(ctx context.Context, key string) (found bool, err error) {
	err = b.WithLock(ctx, func() error {
		found = b.doc.delete(key)
		return nil
	})
	return found, err
}

// Keys returns the document's keys in card order, excluding END.
func (b *Buffer) Keys(ctx context.Context) (keys []string, err error) {
	err = b.WithLock(ctx, func() error {
		keys = b.doc.keys()
		return nil
	})
	return keys, err
}

// Snapshot returns a point-in-time key/raw-value copy of the whole document,
// used by the notifier sidecar to diff successive polls.
func (b *Buffer) Snapshot(ctx context.Context) (snap map[string]string, err error) {
	err = b.WithLock(ctx, func() error {
		snap = b.doc.snapshot()
		return nil
	})
	return snap, err
}

func (b *Buffer) withNumber(ctx context.Context, key string, parse func(field string) error) error {
	return b.WithLock(ctx, func() error {
		_, field, found := b.doc.find(key)
		if !found {
			return ErrAbsent
		}
		return parse(field)
	})
}

func (b *Buffer) putNumber(ctx context.Context, key, field string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return b.WithLock(ctx, func() error {
		return b.doc.put(key, field, "")
	})
}
