package identity

import "fmt"

// Identity pairs the key of a record inside this store (Host) with the key
// the synchronization peer uses for it (Endpoint).
type Identity struct {
	Host     string `json:"host" msgpack:"host"`
	Endpoint string `json:"endpoint" msgpack:"endpoint"`
}

// New returns an identity that only carries a host key.
func New(host string) Identity {
	return Identity{Host: host}
}

// IsEmpty reports whether neither key is known.
func (i Identity) IsEmpty() bool {
	return i.Host == "" && i.Endpoint == ""
}

// HasHost reports whether the store-side key is known.
func (i Identity) HasHost() bool {
	return i.Host != ""
}

// HasEndpoint reports whether the peer-side key is known.
func (i Identity) HasEndpoint() bool {
	return i.Endpoint != ""
}

// WithHost returns a copy carrying host.
func (i Identity) WithHost(host string) Identity {
	i.Host = host
	return i
}

// String renders host/endpoint.
func (i Identity) String() string {
	return fmt.Sprintf("%s/%s", i.Host, i.Endpoint)
}
