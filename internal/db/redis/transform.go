package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/bookdex/internal/db"
)

// maxTransformAttempts bounds the optimistic retry loop. Contention on
// a single document key is short-lived; exhausting this means a
// persistently hot key and the caller gets ErrTxConflict.
const maxTransformAttempts = 8

// Transform applies fn to the JSON document at key atomically via
// WATCH/MULTI/EXEC on a dedicated connection. fn receives the current
// document bytes (nil when the key does not exist) and returns the
// next document; an aborted EXEC means a concurrent writer touched the
// key and the loop retries.
func (s *Store) Transform(ctx context.Context, key string, fn db.TransformFunc) ([]byte, error) {
	var next []byte
	err := s.client.Dedicated(func(c rueidis.DedicatedClient) error {
		for attempt := 0; attempt < maxTransformAttempts; attempt++ {
			if err := c.Do(ctx, c.B().Watch().Key(key).Build()).Error(); err != nil {
				return &db.Error{Op: db.OpWatch, Err: err}
			}

			old, err := readRoot(ctx, c, key)
			if err != nil {
				// Release the WATCH before handing the dedicated
				// connection back to the pool.
				_ = c.Do(ctx, c.B().Unwatch().Build()).Error()
				return err
			}

			var fnErr error
			next, fnErr = fn(old)
			if fnErr != nil {
				// Abort without writing; release the WATCH for the next user
				// of this dedicated connection.
				_ = c.Do(ctx, c.B().Unwatch().Build()).Error()
				return fnErr
			}

			results := c.DoMulti(ctx,
				c.B().Multi().Build(),
				c.B().Arbitrary("JSON.SET").Keys(key).Args("$", string(next)).Build(),
				c.B().Exec().Build(),
			)
			execErr := results[len(results)-1].Error()
			if execErr == nil {
				return nil
			}
			if rueidis.IsRedisNil(execErr) {
				// EXEC aborted: the watched key changed underneath us.
				continue
			}
			return &db.Error{Op: db.OpExec, Err: execErr}
		}
		return db.ErrTxConflict
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// readRoot fetches the root document at key, unwrapping the JSONPath
// array envelope. Returns nil bytes for a missing key.
func readRoot(ctx context.Context, c rueidis.DedicatedClient, key string) ([]byte, error) {
	raw, err := c.Do(ctx, c.B().Arbitrary("JSON.GET").Keys(key).Args("$").Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpJSONGet, Err: err}
	}
	if raw == "" {
		return nil, nil
	}

	var docs []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("unwrap %s: %w", key, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}
