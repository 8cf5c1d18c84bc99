// Package crm is a small HubSpot client covering the calls the attribution
// poller needs: recent contact lists, contact read/update, and custom property
// creation.
package crm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	PropertyCreateDate       = "createdate"
	PropertyLastModifiedDate = "lastmodifieddate"
)

// Contact is a CRM contact record. Property values are kept as the raw
// strings the CRM reported.
type Contact struct {
	ID         string
	Properties map[string]string
}

// CreatedAt parses the createdate property.
func (c Contact) CreatedAt() (time.Time, error) {
	return ParseTimestamp(c.Properties[PropertyCreateDate])
}

// LastModifiedAt parses the lastmodifieddate property.
func (c Contact) LastModifiedAt() (time.Time, error) {
	return ParseTimestamp(c.Properties[PropertyLastModifiedDate])
}

// ParseTimestamp accepts the two formats HubSpot reports: epoch milliseconds
// (contacts v1 lists) and RFC 3339 (CRM v3 objects).
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// PropertyDefinition describes a custom contact property.
type PropertyDefinition struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	FieldType string `json:"fieldType"`
	GroupName string `json:"groupName"`
}

// v1 list payload: {"contacts":[{"vid":51,"properties":{"createdate":{"value":"..."}}}]}
type recentContactsResponse struct {
	Contacts []struct {
		VID        int64 `json:"vid"`
		Properties map[string]struct {
			Value string `json:"value"`
		} `json:"properties"`
	} `json:"contacts"`
}

func (r recentContactsResponse) toContacts() []Contact {
	out := make([]Contact, 0, len(r.Contacts))
	for _, c := range r.Contacts {
		props := make(map[string]string, len(c.Properties))
		for name, p := range c.Properties {
			props[name] = p.Value
		}
		out = append(out, Contact{ID: strconv.FormatInt(c.VID, 10), Properties: props})
	}
	return out
}

// v3 object payload: {"id":"51","properties":{"createdate":"..."}}
type objectResponse struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
}

func (r objectResponse) toContact() Contact {
	props := make(map[string]string, len(r.Properties))
	for name, v := range r.Properties {
		if v != nil {
			props[name] = *v
		} else {
			props[name] = ""
		}
	}
	return Contact{ID: r.ID, Properties: props}
}
