package billing

import "fmt"

// ResourceKind represents a billable or limited dimension of consumption
type ResourceKind string

const (
	ResourceUsers    ResourceKind = "users"
	ResourceLoans    ResourceKind = "loans"
	ResourceClients  ResourceKind = "clients"
	ResourceStorage  ResourceKind = "storage"
	ResourceAPICalls ResourceKind = "apiCalls"
	ResourceSMS      ResourceKind = "sms"
	ResourceWhatsApp ResourceKind = "whatsapp"
	ResourceReports  ResourceKind = "reports"
)

// ResourceUnit is the measurement unit of a resource kind
type ResourceUnit string

const (
	ResourceUnitCount    ResourceUnit = "count"
	ResourceUnitBytes    ResourceUnit = "bytes"
	ResourceUnitRequests ResourceUnit = "requests"
	ResourceUnitMessages ResourceUnit = "messages"
)

func (k ResourceKind) String() string {
	return string(k)
}

// IsValid returns true if the resource kind is one of the known kinds
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceUsers, ResourceLoans, ResourceClients, ResourceStorage,
		ResourceAPICalls, ResourceSMS, ResourceWhatsApp, ResourceReports:
		return true
	}
	return false
}

// IsStock returns true for current-state counts (e.g. active loans).
// A stock counter with no activity in a period still has a non-zero value.
func (k ResourceKind) IsStock() bool {
	switch k {
	case ResourceUsers, ResourceLoans, ResourceClients, ResourceStorage:
		return true
	}
	return false
}

// IsFlow returns true for counters that accumulate within a period
func (k ResourceKind) IsFlow() bool {
	switch k {
	case ResourceAPICalls, ResourceSMS, ResourceWhatsApp, ResourceReports:
		return true
	}
	return false
}

// Column returns the usage_snapshots column holding this kind's counter
func (k ResourceKind) Column() string {
	switch k {
	case ResourceAPICalls:
		return "api_calls"
	default:
		return string(k)
	}
}

// Unit returns the measurement unit for this kind
func (k ResourceKind) Unit() ResourceUnit {
	switch k {
	case ResourceStorage:
		return ResourceUnitBytes
	case ResourceAPICalls:
		return ResourceUnitRequests
	case ResourceSMS, ResourceWhatsApp:
		return ResourceUnitMessages
	default:
		return ResourceUnitCount
	}
}

// DisplayName returns a human-readable name for the kind
func (k ResourceKind) DisplayName() string {
	switch k {
	case ResourceUsers:
		return "Users"
	case ResourceLoans:
		return "Active Loans"
	case ResourceClients:
		return "Clients"
	case ResourceStorage:
		return "Storage"
	case ResourceAPICalls:
		return "API Calls"
	case ResourceSMS:
		return "SMS Messages"
	case ResourceWhatsApp:
		return "WhatsApp Messages"
	case ResourceReports:
		return "Reports Generated"
	default:
		return string(k)
	}
}

// AllResourceKinds returns every resource kind in a stable order
func AllResourceKinds() []ResourceKind {
	return []ResourceKind{
		ResourceUsers,
		ResourceLoans,
		ResourceClients,
		ResourceStorage,
		ResourceAPICalls,
		ResourceSMS,
		ResourceWhatsApp,
		ResourceReports,
	}
}

// StockResourceKinds returns the stock kinds in a stable order
func StockResourceKinds() []ResourceKind {
	return []ResourceKind{ResourceUsers, ResourceLoans, ResourceClients, ResourceStorage}
}

// ParseResourceKind parses a string into a ResourceKind
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid resource kind: %s", s)
	}
	return k, nil
}
