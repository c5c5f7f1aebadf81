package device

import "strings"

// Property is a set of GATT characteristic properties.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "Broadcast"},
	{PropRead, "Read"},
	{PropWriteWithoutResponse, "WriteWithoutResponse"},
	{PropWrite, "Write"},
	{PropNotify, "Notify"},
	{PropIndicate, "Indicate"},
	{PropSignedWrite, "AuthenticatedSignedWrites"},
	{PropExtended, "ExtendedProperties"},
}

// Has reports whether every property in q is present in p.
func (p Property) Has(q Property) bool {
	return q != 0 && p&q == q
}

// Names lists the property names in bit order.
func (p Property) Names() []string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Property) String() string {
	if p == 0 {
		return "None"
	}
	return strings.Join(p.Names(), ", ")
}

// ParseProperties parses a comma separated list such as "read,write,notify".
// Unknown names are ignored.
func ParseProperties(s string) Property {
	var p Property
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "broadcast":
			p |= PropBroadcast
		case "read":
			p |= PropRead
		case "write-without-response", "writewithoutresponse", "write_nr":
			p |= PropWriteWithoutResponse
		case "write":
			p |= PropWrite
		case "notify":
			p |= PropNotify
		case "indicate":
			p |= PropIndicate
		case "signed-write":
			p |= PropSignedWrite
		case "extended":
			p |= PropExtended
		}
	}
	return p
}
