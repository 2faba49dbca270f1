package tools

import "strings"

// Kind is a closed enumeration over the tool families in the GHL catalog,
// plus the local datetime tool and a fallback. UI labeling keys off Kind
// instead of branching on raw tool name strings.
type Kind int

const (
	KindOther Kind = iota
	KindContacts
	KindCalendars
	KindConversations
	KindOpportunities
	KindLocations
	KindPayments
	KindDateTime
)

// DisplayMeta is the client-facing presentation for a tool family.
type DisplayMeta struct {
	Label string
	Icon  string
}

var displayMeta = map[Kind]DisplayMeta{
	KindContacts:      {Label: "Contacts", Icon: "👤"},
	KindCalendars:     {Label: "Calendar", Icon: "📅"},
	KindConversations: {Label: "Messages", Icon: "💬"},
	KindOpportunities: {Label: "Deals", Icon: "💰"},
	KindLocations:     {Label: "Business", Icon: "📍"},
	KindPayments:      {Label: "Payments", Icon: "💳"},
	KindDateTime:      {Label: "Clock", Icon: "🕐"},
	KindOther:         {Label: "Tool", Icon: "🔧"},
}

var kindByPrefix = map[string]Kind{
	"contacts":      KindContacts,
	"calendars":     KindCalendars,
	"conversations": KindConversations,
	"opportunities": KindOpportunities,
	"locations":     KindLocations,
	"payments":      KindPayments,
}

// KindOf derives the Kind from a tool name. Catalog names are
// "<family>_<operation>"; anything unrecognized maps to KindOther.
func KindOf(name string) Kind {
	if name == DateTimeToolName {
		return KindDateTime
	}
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return KindOther
	}
	if k, ok := kindByPrefix[prefix]; ok {
		return k
	}
	return KindOther
}

// Display returns the presentation metadata for a kind.
func (k Kind) Display() DisplayMeta {
	if meta, ok := displayMeta[k]; ok {
		return meta
	}
	return displayMeta[KindOther]
}
