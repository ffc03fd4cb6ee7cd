package kv

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
)

// Combine goes through the provided operations until one of them fails.
// When the first one fails, the related error is returned.
func Combine(ops ...func(*badger.Txn) error) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		for _, op := range ops {
			err := op(tx)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *Codec) retrieve(key []byte, v interface{}) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return fmt.Errorf("could not get value (key: %x): %w", key, err)
		}

		err = item.Value(func(val []byte) error {
			return c.Unmarshal(val, v)
		})
		if err != nil {
			return fmt.Errorf("could not decode value (key: %x): %w", key, err)
		}
		return nil
	}
}

// retrieveOptional behaves like retrieve but leaves v untouched when the key
// does not exist.
func (c *Codec) retrieveOptional(key []byte, v interface{}) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := c.retrieve(key, v)(tx)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}
}

func (c *Codec) save(key []byte, value interface{}) func(*badger.Txn) error {
	// NOTE: The value is encoded right away rather than in the closure, so a
	// loop variable passed in cannot change before the transaction runs.
	val, err := c.Marshal(value)
	return func(tx *badger.Txn) error {
		if err != nil {
			return fmt.Errorf("could not encode value (key: %x): %w", key, err)
		}

		err := tx.Set(key, val)
		if err != nil {
			return fmt.Errorf("could not set value (key: %x): %w", key, err)
		}
		return nil
	}
}

// exists reports into found whether key is present.
func exists(key []byte, found *bool) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		switch {
		case err == nil:
			*found = true
		case errors.Is(err, badger.ErrKeyNotFound):
			*found = false
		default:
			return fmt.Errorf("could not check key (key: %x): %w", key, err)
		}
		return nil
	}
}

func mark(key []byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := tx.Set(key, nil)
		if err != nil {
			return fmt.Errorf("could not set index (key: %x): %w", key, err)
		}
		return nil
	}
}
