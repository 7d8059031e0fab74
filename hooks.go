package potency

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths, with the joined key string.
type Hooks interface {
	// A stored value was returned without computing.
	Hit(key string)

	// No stored value; the computation is about to run.
	Miss(key string)

	// The computation failed. Nothing was stored.
	ComputeFailed(key string, err error)

	// A stored value could not be decoded into the requested type.
	DecodeFailed(key string, err error)

	// The backend failed. op ∈ {"acquire", "fetch", "store", "delete"}
	BackendFailed(op, key string, err error)

	// A computed value of size bytes was persisted.
	Stored(key string, size int)

	// A caller received the result of another caller's in-flight
	// fetch-or-compute for the same key (per-key locking only).
	Coalesced(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string)                          {}
func (NopHooks) Miss(string)                         {}
func (NopHooks) ComputeFailed(string, error)         {}
func (NopHooks) DecodeFailed(string, error)          {}
func (NopHooks) BackendFailed(string, string, error) {}
func (NopHooks) Stored(string, int)                  {}
func (NopHooks) Coalesced(string)                    {}
