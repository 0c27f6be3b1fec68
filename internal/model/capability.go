package model

import "strings"

// Capability is a set of independent authorization bits attached to a client.
// Masks are always checked jointly with CapAuthenticated.
type Capability uint8

const (
	CapAuthenticated Capability = 0x01
	CapPlayer        Capability = 0x02
	CapHost          Capability = 0x04
	CapRegistered    Capability = 0x08
	CapManager       Capability = 0x1E
	CapRoot          Capability = 0xFE
)

// Has reports whether c satisfies x together with CapAuthenticated.
// Has(0) means "authenticated only".
func (c Capability) Has(x Capability) bool {
	want := CapAuthenticated | x
	return c&want == want
}

// String renders the set bits for logs, e.g. "authenticated|player|host".
func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		bit  Capability
		name string
	}{
		{CapAuthenticated, "authenticated"},
		{CapPlayer, "player"},
		{CapHost, "host"},
		{CapRegistered, "registered"},
		{0x10, "manager"},
		{0xE0, "root"},
	}
	var parts []string
	for _, n := range names {
		if c&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// StoredRole is the durable form of a Capability.
//
// Bit 0 of the runtime mask is the transient CapAuthenticated flag, so the
// durable value is the runtime mask shifted right by one and never records
// authentication. FromStored is the inverse for every mask without bit 0.
type StoredRole int16

// ToStored converts a runtime mask into its durable form, dropping CapAuthenticated.
func ToStored(c Capability) StoredRole {
	return StoredRole(c >> 1)
}

// FromStored converts a durable role into a runtime mask. The result never
// carries CapAuthenticated.
func FromStored(r StoredRole) Capability {
	return Capability(r<<1) &^ CapAuthenticated
}
