// Package attribution writes UTM attribution properties onto CRM contacts.
//
// Each attribution dimension is kept in three property groups: the current
// touch, the first touch (written only when a contact is created) and the
// last touch (rewritten on every genuine update).
package attribution

import (
	"net/url"
	"strings"
)

type Dimension string

const (
	Campaign Dimension = "campaign"
	Source   Dimension = "source"
	Medium   Dimension = "medium"
	Term     Dimension = "term"
	Content  Dimension = "content"
	UserID   Dimension = "user_id"
)

// Dimensions lists every tracked dimension in write order.
var Dimensions = []Dimension{Campaign, Source, Medium, Term, Content, UserID}

// QueryParam is the landing-page query parameter carrying d.
func (d Dimension) QueryParam() string {
	if d == UserID {
		return "user_id"
	}
	return "utm_" + string(d)
}

// Attrs is one attribution source: a value per dimension. Absent dimensions
// read as "".
type Attrs map[Dimension]string

// Parse extracts attribution from a landing-page URL or a bare query string.
func Parse(raw string) Attrs {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	// ParseQuery keeps every pair it could decode alongside the error.
	values, _ := url.ParseQuery(raw)
	return FromValues(values)
}

// FromValues picks the tracked dimensions out of query values.
func FromValues(values url.Values) Attrs {
	attrs := Attrs{}
	for _, d := range Dimensions {
		if v := strings.TrimSpace(values.Get(d.QueryParam())); v != "" {
			attrs[d] = v
		}
	}
	return attrs
}

// Get returns the value for d, or "".
func (a Attrs) Get(d Dimension) string {
	return a[d]
}

// Empty reports whether no dimension carries a value.
func (a Attrs) Empty() bool {
	for _, v := range a {
		if v != "" {
			return false
		}
	}
	return true
}
