package cache

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"log"
)

// StorageKey names the durable slot holding the serialized cache.
const StorageKey = "greenDomainCache"

// Store is a durable slot for the serialized cache blob.
// Load returns a nil slice and no error when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// Updater is implemented by stores that can read and replace the blob in one step,
// with no other writer in between. fn receives the current blob (nil when empty) and
// returns its replacement; it may be called more than once.
type Updater interface {
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// Restore hydrates c from store. Failures are logged and returned; the cache stays usable
// without durability.
func (c *Cache) Restore(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	data, err := store.Load(ctx)
	if err != nil {
		log.Printf("cache: failed to load snapshot: %v", err)
		return fmt.Errorf("load cache snapshot: %w", err)
	}
	loaded, dropped, err := c.Hydrate(data)
	if err != nil {
		log.Printf("cache: ignoring unreadable snapshot: %v", err)
		return err
	}
	if loaded > 0 || dropped > 0 {
		log.Printf("cache: restored %d entries (%d expired)", loaded, dropped)
	}
	return nil
}

// Persist merges the stored blob into c and writes the union back, so processes sharing
// a store keep each other's entries. Stores implementing Updater do this atomically;
// for the rest it is a plain load then save.
func (c *Cache) Persist(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	var err error
	if u, ok := store.(Updater); ok {
		err = u.Update(ctx, c.mergeAndSerialize)
	} else {
		err = c.loadMergeSave(ctx, store)
	}
	if err != nil {
		log.Printf("cache: failed to persist snapshot: %v", err)
		return fmt.Errorf("persist cache snapshot: %w", err)
	}
	return nil
}

func (c *Cache) loadMergeSave(ctx context.Context, store Store) error {
	current, err := store.Load(ctx)
	if err != nil {
		return err
	}
	data, err := c.mergeAndSerialize(current)
	if err != nil {
		return err
	}
	return store.Save(ctx, data)
}

func (c *Cache) mergeAndSerialize(current []byte) ([]byte, error) {
	if _, err := c.Merge(current); err != nil {
		log.Printf("cache: overwriting unreadable snapshot: %v", err)
	}
	return c.Serialize()
}

// Reset clears the in-memory entries and the durable copy.
func (c *Cache) Reset(ctx context.Context, store Store) error {
	c.Clear()
	if store == nil {
		return nil
	}
	if err := store.Clear(ctx); err != nil {
		log.Printf("cache: failed to clear durable snapshot: %v", err)
		return fmt.Errorf("clear cache snapshot: %w", err)
	}
	return nil
}
