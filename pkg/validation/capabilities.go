package validation

// StandardCapabilities lists the well-known capability tokens by category.
// Other tokens are accepted when well-formed; namespaced tokens
// ("provider:capability") carry provider-specific extensions.
var StandardCapabilities = map[string][]string{
	"booking":       {"reservations", "availability", "cancellation"},
	"commerce":      {"ordering", "payments", "catalog"},
	"information":   {"menu", "hours", "contact"},
	"communication": {"messaging", "notifications"},
}

var standardCapabilitySet = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, caps := range StandardCapabilities {
		for _, c := range caps {
			set[c] = struct{}{}
		}
	}
	return set
}()

// IsStandardCapability reports whether c is a bare token from the standard catalog.
func IsStandardCapability(c string) bool {
	_, ok := standardCapabilitySet[c]
	return ok
}
