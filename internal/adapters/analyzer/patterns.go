package analyzer

import "strings"

// Tiered sender-pattern scores. The tiers are ordered: a bulk-sender local
// part is stronger evidence than an ESP sending domain, which is stronger
// than a newsletter-flavored friendly name.
const (
	bulkPrefixScore   = 0.8
	espDomainScore    = 0.7
	friendlyNameScore = 0.6
)

// bulkSenderPrefixes are local parts used by automated bulk senders
var bulkSenderPrefixes = []string{
	"newsletter",
	"news",
	"noreply",
	"no-reply",
	"donotreply",
	"updates",
	"digest",
	"notifications",
	"mailer",
	"hello",
	"info",
}

// espSendingDomains are domains email service providers send from
var espSendingDomains = []string{
	"mailchimp.com",
	"mcsv.net",
	"rsgsv.net",
	"sendgrid.net",
	"sendgrid.com",
	"mailgun.org",
	"mailgun.net",
	"amazonses.com",
	"sparkpostmail.com",
	"postmarkapp.com",
	"mandrillapp.com",
	"constantcontact.com",
	"cmail19.com",
	"cmail20.com",
	"substack.com",
	"buttondown.email",
	"beehiiv.com",
	"convertkit.com",
	"getrevue.co",
}

// friendlyNameMarkers are words in display names or local parts that read
// like a periodical
var friendlyNameMarkers = []string{
	"digest",
	"weekly",
	"daily",
	"monthly",
	"bulletin",
	"roundup",
	"briefing",
	"dispatch",
	"edition",
}

// espHeaderPrefixes are headers stamped by known ESPs and bulk mailers
var espHeaderPrefixes = []string{
	"x-mailchimp",
	"x-mc-",
	"x-mailgun",
	"x-sg-",
	"x-sendgrid",
	"x-ses-",
	"x-postmark",
	"x-campaign",
	"x-mandrill",
	"x-sparkpost",
	"x-cm-",
	"x-beehiiv",
	"x-substack",
	"list-id",
	"list-post",
	"precedence",
}

// senderPatternScore is the tiered lookup shared by the header and
// sender-pattern analyzers: bulk local-part prefix, then ESP sending
// domain, then periodical-flavored friendly name, else zero.
func senderPatternScore(from string) (float64, string) {
	address, display := splitAddress(from)
	local, domain := splitLocal(address)

	for _, prefix := range bulkSenderPrefixes {
		if strings.HasPrefix(local, prefix) {
			return bulkPrefixScore, "bulk sender prefix " + prefix
		}
	}
	for _, esp := range espSendingDomains {
		if domain == esp || strings.HasSuffix(domain, "."+esp) {
			return espDomainScore, "ESP sending domain " + esp
		}
	}
	name := strings.ToLower(display + " " + local)
	for _, marker := range friendlyNameMarkers {
		if strings.Contains(name, marker) {
			return friendlyNameScore, "periodical name marker " + marker
		}
	}
	return 0, ""
}

// splitAddress separates "Display Name <addr@host>" into address and
// display name, tolerating bare addresses
func splitAddress(from string) (address, display string) {
	from = strings.TrimSpace(from)
	open := strings.LastIndex(from, "<")
	close := strings.LastIndex(from, ">")
	if open >= 0 && close > open {
		display = strings.Trim(strings.TrimSpace(from[:open]), `"`)
		address = from[open+1 : close]
		return address, display
	}
	return from, ""
}

func splitLocal(address string) (local, domain string) {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return strings.ToLower(address), ""
	}
	return strings.ToLower(parts[0]), strings.ToLower(parts[1])
}
