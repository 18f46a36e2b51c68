// runtime.go - Prozessweite Referenzzaehlung fuer Runtime und Geraete
//
// Treiber-Runtimes sind meist nicht reentrant: Init/Finalize duerfen nicht
// pro Core-Instanz laufen, solange andere Instanzen leben. Die erste Instanz
// initialisiert, die letzte finalisiert. Gleiches gilt fuer SetDevice und
// ResetDevice pro Geraete-Index.
package om

import (
	"log/slog"
	"sync"
)

type deviceKey struct {
	driver Driver
	id     int
}

// counted tracks users of a process-wide driver state. held stays set while
// the state is live on the driver, also after a failed teardown, so the next
// user reuses it instead of initializing twice.
type counted[K comparable] struct {
	users map[K]int
	held  map[K]bool
}

func newCounted[K comparable]() counted[K] {
	return counted[K]{users: make(map[K]int), held: make(map[K]bool)}
}

func (c counted[K]) acquire(key K, setup func() error) error {
	if !c.held[key] {
		if err := setup(); err != nil {
			return err
		}
		c.held[key] = true
	}
	c.users[key]++
	return nil
}

func (c counted[K]) release(key K, teardown func() error) error {
	c.users[key]--
	if c.users[key] > 0 {
		return nil
	}
	delete(c.users, key)
	if err := teardown(); err != nil {
		return err
	}
	delete(c.held, key)
	return nil
}

var refs = struct {
	sync.Mutex
	runtimes counted[Driver]
	devices  counted[deviceKey]
}{
	runtimes: newCounted[Driver](),
	devices:  newCounted[deviceKey](),
}

// acquireRuntime initializes d on first use. The returned release finalizes
// it when the last user is gone. A failed finalize keeps d initialized.
func acquireRuntime(d Driver) (release func() error, err error) {
	refs.Lock()
	defer refs.Unlock()

	err = refs.runtimes.acquire(d, func() error {
		if err := d.Init(); err != nil {
			return err
		}
		slog.Debug("driver runtime initialized", "driver", d.Name())
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func() error {
		refs.Lock()
		defer refs.Unlock()

		return refs.runtimes.release(d, func() error {
			if err := d.Finalize(); err != nil {
				slog.Warn("driver runtime stays initialized", "driver", d.Name(), "error", err)
				return err
			}
			slog.Debug("driver runtime finalized", "driver", d.Name())
			return nil
		})
	}, nil
}

// acquireDevice binds device id on first use and resets it when the last
// user releases. A failed reset keeps the device bound.
func acquireDevice(d Driver, id int) (release func() error, err error) {
	refs.Lock()
	defer refs.Unlock()

	key := deviceKey{d, id}
	if err := refs.devices.acquire(key, func() error { return d.SetDevice(id) }); err != nil {
		return nil, err
	}

	return func() error {
		refs.Lock()
		defer refs.Unlock()

		return refs.devices.release(key, func() error { return d.ResetDevice(id) })
	}, nil
}
