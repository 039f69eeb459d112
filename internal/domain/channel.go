package domain

import "strings"

// Channel names one delivery medium handled by an aggregator.
type Channel string

const (
	ChannelMailingParent Channel = "mailing-parent"
	ChannelMailingHeader Channel = "mailing-header"
	ChannelMailingFeed   Channel = "mailing-feed"
	ChannelMailingBody   Channel = "mailing-body"
	ChannelPushApp       Channel = "push-app"
	ChannelPushWeb       Channel = "push-web"
)

// OwnedChannels lists every channel of the owned medium in dispatch order.
var OwnedChannels = []Channel{
	ChannelMailingParent,
	ChannelMailingHeader,
	ChannelMailingFeed,
	ChannelMailingBody,
	ChannelPushApp,
	ChannelPushWeb,
}

// Medium groups channels the way campaigns are bought.
type Medium string

const (
	MediumOwned  Medium = "owned"
	MediumPaid   Medium = "paid"
	MediumOnSite Medium = "onsite"
)

// FormatTag is the trailing segment of a utm_campaign token that says where
// in the e-mail the clicked link lives.
type FormatTag string

const (
	FormatHeader FormatTag = "header"
	FormatFeed   FormatTag = "feed"
	FormatBody   FormatTag = "body"
)

// formatAliases maps the short Marketing Cloud codes onto the canonical tags.
var formatAliases = map[string]FormatTag{
	"header": FormatHeader,
	"mc":     FormatHeader,
	"feed":   FormatFeed,
	"mf":     FormatFeed,
	"body":   FormatBody,
	"mb":     FormatBody,
}

// Matches reports whether a raw token tag (case-insensitive, short code or
// full name) denotes f.
func (f FormatTag) Matches(raw string) bool {
	tag, ok := formatAliases[strings.ToLower(raw)]
	return ok && tag == f
}
