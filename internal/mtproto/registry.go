package mtproto

import (
	"fmt"
	"sort"
	"sync"
)

// Options carries everything a driver needs to dial user clients.
type Options struct {
	Credentials Credentials

	// SessionPath maps a phone number to its credential store location.
	SessionPath func(phone string) string
}

// DriverFunc constructs a Dialer from driver options.
type DriverFunc func(Options) (Dialer, error)

var (
	driversMu sync.Mutex
	drivers   = map[string]DriverFunc{}
)

// Register makes a dialer driver available under name. Real MTProto drivers
// are linked in by the final binary, the same way database/sql drivers are;
// registering twice for one name panics.
func Register(name string, fn DriverFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if fn == nil {
		panic("mtproto: Register with nil driver")
	}
	if _, dup := drivers[name]; dup {
		panic("mtproto: Register called twice for driver " + name)
	}
	drivers[name] = fn
}

// OpenDialer constructs the named driver.
func OpenDialer(name string, opt Options) (Dialer, error) {
	driversMu.Lock()
	fn := drivers[name]
	known := make([]string, 0, len(drivers))
	for k := range drivers {
		known = append(known, k)
	}
	driversMu.Unlock()

	if fn == nil {
		sort.Strings(known)
		return nil, fmt.Errorf("unknown mtproto driver %q (registered: %v)", name, known)
	}
	return fn(opt)
}
