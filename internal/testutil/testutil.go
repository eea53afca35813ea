// Package testutil provides in-memory fakes and fixtures shared by tests.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/meigma/mediacache/remote"
)

// RemoteScheme prefixes every locator issued by Remote.
const RemoteScheme = "mem://"

// Remote is a concurrency-safe in-memory remote.Store with call counters
// and failure injection.
type Remote struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	fetchErr  func(locator string) error
	storeErr  func(attempt int) error
	deleteErr error
	gate      chan struct{}

	fetches atomic.Int64
	stores  atomic.Int64
	deletes atomic.Int64
}

var _ remote.Store = (*Remote)(nil)

// NewRemote returns an empty Remote.
func NewRemote() *Remote {
	return &Remote{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Add stores data at locator without counting a call.
func (r *Remote) Add(locator string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[locator] = append([]byte(nil), data...)
}

// Object returns the stored object and its content type.
func (r *Remote) Object(locator string) (data []byte, contentType string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok = r.objects[locator]
	return data, r.types[locator], ok
}

// Len returns the number of stored objects.
func (r *Remote) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// FailFetch makes FetchBytes return fn(locator) when it is non-nil.
func (r *Remote) FailFetch(fn func(locator string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErr = fn
}

// FailStore makes StoreBytes return fn(n) when it is non-nil, where n is the
// 1-based count of StoreBytes calls so far.
func (r *Remote) FailStore(fn func(n int) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErr = fn
}

// FailDelete makes DeleteBytes return err.
func (r *Remote) FailDelete(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteErr = err
}

// Block makes FetchBytes wait until the returned release func is called or
// the request context ends.
func (r *Remote) Block() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate = gate
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Fetches returns the number of FetchBytes calls.
func (r *Remote) Fetches() int { return int(r.fetches.Load()) }

// Stores returns the number of StoreBytes calls.
func (r *Remote) Stores() int { return int(r.stores.Load()) }

// Deletes returns the number of DeleteBytes calls.
func (r *Remote) Deletes() int { return int(r.deletes.Load()) }

// FetchBytes implements remote.Store.
func (r *Remote) FetchBytes(ctx context.Context, locator string) ([]byte, error) {
	r.fetches.Add(1)

	r.mu.Lock()
	gate, failFn := r.gate, r.fetchErr
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failFn != nil {
		if err := failFn(locator); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.objects[locator]
	if !ok {
		return nil, &remote.StatusError{Code: http.StatusNotFound}
	}
	return append([]byte(nil), data...), nil
}

// StoreBytes implements remote.Store. Locators are RemoteScheme plus the
// resolved object name.
func (r *Remote) StoreBytes(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	n := int(r.stores.Add(1))
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		if err := r.storeErr(n); err != nil {
			return "", err
		}
	}
	locator := RemoteScheme + remote.ObjectName(pathHint, contentType)
	r.objects[locator] = append([]byte(nil), data...)
	r.types[locator] = contentType
	return locator, nil
}

// DeleteBytes implements remote.Store. Deleting a missing object succeeds.
func (r *Remote) DeleteBytes(ctx context.Context, locator string) error {
	r.deletes.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.objects, locator)
	delete(r.types, locator)
	return nil
}
