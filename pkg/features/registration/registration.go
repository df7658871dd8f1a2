// Package registration decides whether a voip.ms account's registration state
// changed between two snapshots.
package registration

import (
	"sort"
	"strings"

	"github.com/nsutclif/voipms-monitor/pkg/features/errors"
)

// RegistrationEntry is one server registration. Other provider fields are
// dropped at the source boundary.
type RegistrationEntry struct {
	ServerShortName string
	RegisterIP      string
}

// RegistrationStatus is a snapshot of an account's registration state.
// Registrations are compared as a set of IPs, their order is irrelevant.
type RegistrationStatus struct {
	Registered    bool
	Registrations []RegistrationEntry
}

// Validate reports ErrMalformedStatus when the account claims to be registered
// without any registration entries.
func (s RegistrationStatus) Validate() error {
	if s.Registered && len(s.Registrations) == 0 {
		return errors.Malformed("registered but no registrations listed")
	}
	return nil
}

// Outcome is the detector's decision. The zero value means no change.
type Outcome struct {
	Changed bool
	Message string
}

// NoChange is returned when nothing needs to be reported or persisted.
var NoChange = Outcome{}

func changed(message string) Outcome {
	return Outcome{Changed: true, Message: message}
}

// SortedIPList joins the register IPs of status in ascending order with ",".
func SortedIPList(status RegistrationStatus) string {
	ips := make([]string, 0, len(status.Registrations))
	for _, entry := range status.Registrations {
		ips = append(ips, entry.RegisterIP)
	}
	sort.Strings(ips)
	return strings.Join(ips, ",")
}

// DetectChange compares the previous snapshot (nil on the first poll) with the
// current one. The first matching rule wins:
//
//  1. first poll and registered: "Newly registered at <ips>"
//  2. not registered: "No longer registered."
//  3. IP set differs from previous: "IP address changed. ..."
//  4. otherwise NoChange
func DetectChange(previous *RegistrationStatus, current RegistrationStatus) (Outcome, error) {
	if err := current.Validate(); err != nil {
		return NoChange, err
	}

	currentIPs := SortedIPList(current)

	if previous == nil && current.Registered {
		return changed("Newly registered at " + currentIPs), nil
	}
	if !current.Registered {
		return changed("No longer registered."), nil
	}
	if previous != nil {
		previousIPs := SortedIPList(*previous)
		if previousIPs != currentIPs {
			return changed("IP address changed.\nWas at " + previousIPs + "\nNow at " + currentIPs), nil
		}
	}
	return NoChange, nil
}
