// Package linker stores the pairs of host and endpoint keys the mapping
// engine reconciles identities with. Each link is kept twice, once under
// its host key and once under its endpoint key, so both directions resolve
// with a single read:
//
//	<prefix>:<entity>:h:<host>      -> Record
//	<prefix>:<entity>:e:<endpoint>  -> Record
//
// Records are msgpack encoded.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
)

// ErrIncompleteIdentity is returned by Link when host or endpoint is empty.
var ErrIncompleteIdentity = errors.New("link requires host and endpoint")

// Record is one stored link.
type Record struct {
	Entity   string    `msgpack:"entity"`
	Host     string    `msgpack:"host"`
	Endpoint string    `msgpack:"endpoint"`
	LinkedAt time.Time `msgpack:"linked_at"`
}

// Identity returns the linked pair.
func (r Record) Identity() identity.Identity {
	return identity.Identity{Host: r.Host, Endpoint: r.Endpoint}
}

// Linker keeps identity links in a KV store.
type Linker struct {
	store  core.KVStore
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// New creates a linker. A ttl of 0 keeps links forever.
func New(store core.KVStore, prefix string, ttl time.Duration) *Linker {
	return &Linker{store: store, prefix: prefix, ttl: ttl, now: time.Now}
}

func (l *Linker) hostKey(entity, host string) string {
	return fmt.Sprintf("%s:%s:h:%s", l.prefix, entity, host)
}

func (l *Linker) endpointKey(entity, endpoint string) string {
	return fmt.Sprintf("%s:%s:e:%s", l.prefix, entity, endpoint)
}

// Link stores id for entity. A host or endpoint linked before to another
// partner loses that old link.
func (l *Linker) Link(ctx context.Context, entity string, id identity.Identity) error {
	if !id.HasHost() || !id.HasEndpoint() {
		return fmt.Errorf("%w: %s %s", ErrIncompleteIdentity, entity, id)
	}

	if old, ok, err := l.read(ctx, l.hostKey(entity, id.Host)); err != nil {
		return err
	} else if ok && old.Endpoint != id.Endpoint {
		if err := l.store.Delete(ctx, l.endpointKey(entity, old.Endpoint)); err != nil {
			return fmt.Errorf("failed to drop stale endpoint link: %w", err)
		}
	}
	if old, ok, err := l.read(ctx, l.endpointKey(entity, id.Endpoint)); err != nil {
		return err
	} else if ok && old.Host != id.Host {
		if err := l.store.Delete(ctx, l.hostKey(entity, old.Host)); err != nil {
			return fmt.Errorf("failed to drop stale host link: %w", err)
		}
	}

	data, err := msgpack.Marshal(Record{
		Entity:   entity,
		Host:     id.Host,
		Endpoint: id.Endpoint,
		LinkedAt: l.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode link: %w", err)
	}

	if err := l.store.BatchSet(ctx, map[string][]byte{
		l.hostKey(entity, id.Host):         data,
		l.endpointKey(entity, id.Endpoint): data,
	}, l.ttl); err != nil {
		return fmt.Errorf("failed to store link %s for %s: %w", id, entity, err)
	}
	log.Printf("[LINKER] Linked %s %s", entity, id)
	return nil
}

// Unlink removes the link of id. A missing half is looked up through the
// known half; unknown links are ignored.
func (l *Linker) Unlink(ctx context.Context, entity string, id identity.Identity) error {
	if id.HasHost() && !id.HasEndpoint() {
		if rec, ok, err := l.read(ctx, l.hostKey(entity, id.Host)); err != nil {
			return err
		} else if ok {
			id.Endpoint = rec.Endpoint
		}
	}
	if id.HasEndpoint() && !id.HasHost() {
		if rec, ok, err := l.read(ctx, l.endpointKey(entity, id.Endpoint)); err != nil {
			return err
		} else if ok {
			id.Host = rec.Host
		}
	}

	if id.HasHost() {
		if err := l.store.Delete(ctx, l.hostKey(entity, id.Host)); err != nil {
			return fmt.Errorf("failed to unlink host %s: %w", id.Host, err)
		}
	}
	if id.HasEndpoint() {
		if err := l.store.Delete(ctx, l.endpointKey(entity, id.Endpoint)); err != nil {
			return fmt.Errorf("failed to unlink endpoint %s: %w", id.Endpoint, err)
		}
	}
	return nil
}

// HostFor returns the host key linked to endpoint.
func (l *Linker) HostFor(ctx context.Context, entity, endpoint string) (string, bool, error) {
	rec, ok, err := l.read(ctx, l.endpointKey(entity, endpoint))
	if err != nil || !ok {
		return "", false, err
	}
	return rec.Host, true, nil
}

// EndpointFor returns the endpoint key linked to host.
func (l *Linker) EndpointFor(ctx context.Context, entity, host string) (string, bool, error) {
	rec, ok, err := l.read(ctx, l.hostKey(entity, host))
	if err != nil || !ok {
		return "", false, err
	}
	return rec.Endpoint, true, nil
}

// Lookup returns the full record linked to host.
func (l *Linker) Lookup(ctx context.Context, entity, host string) (Record, bool, error) {
	return l.read(ctx, l.hostKey(entity, host))
}

func (l *Linker) read(ctx context.Context, key string) (Record, bool, error) {
	data, err := l.store.Get(ctx, key)
	if errors.Is(err, core.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read link %s: %w", key, err)
	}

	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		log.Printf("[LINKER] WARNING: Dropping undecodable link %s: %v", key, err)
		return Record{}, false, nil
	}
	rec.LinkedAt = rec.LinkedAt.UTC()
	return rec, true, nil
}
