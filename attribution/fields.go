package attribution

import "github.com/ranaawaisahmad/utmApp/crm"

type Group int

const (
	CurrentTouch Group = iota
	FirstTouch
	LastTouch
)

func (g Group) String() string {
	switch g {
	case CurrentTouch:
		return "current"
	case FirstTouch:
		return "first_touch"
	case LastTouch:
		return "last_touch"
	}
	return "unknown"
}

// PropertyName is the CRM property holding d in group g.
//
//	current:     utm_campaign1 ... utm_content1, user_id
//	first touch: utm_campaign_first_touch ..., user_id_first_touch
//	last touch:  utm_campaign_last_touch ...,  user_id_last_touch
func PropertyName(d Dimension, g Group) string {
	base := d.QueryParam()
	switch g {
	case FirstTouch:
		return base + "_first_touch"
	case LastTouch:
		return base + "_last_touch"
	}
	if d == UserID {
		return base
	}
	return base + "1"
}

// Properties renders the write payload for the given groups. Every property
// of every group is present; missing dimensions are written as "".
func Properties(attrs Attrs, groups ...Group) map[string]string {
	props := make(map[string]string, len(Dimensions)*len(groups))
	for _, g := range groups {
		for _, d := range Dimensions {
			props[PropertyName(d, g)] = attrs.Get(d)
		}
	}
	return props
}

// PropertyDefinitions describes every custom property the writer uses.
func PropertyDefinitions() []crm.PropertyDefinition {
	defs := make([]crm.PropertyDefinition, 0, len(Dimensions)*3)
	for _, g := range []Group{CurrentTouch, FirstTouch, LastTouch} {
		for _, d := range Dimensions {
			name := PropertyName(d, g)
			defs = append(defs, crm.PropertyDefinition{
				Name:      name,
				Label:     name,
				Type:      "string",
				FieldType: "text",
				GroupName: "contactinformation",
			})
		}
	}
	return defs
}
