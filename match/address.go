package match

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/mailsift/mailsift/model"
)

var fromOnlyHeaders = []string{"From"}
var participantHeaders = []string{"From", "To", "Cc", "Reply-To"}

// involvesTarget reports whether the target address appears among the
// addresses of the qualifying headers. target must be lowercase.
func involvesTarget(msg *model.DecodedMessage, target string, fromOnly bool) bool {
	headers := participantHeaders
	if fromOnly {
		headers = fromOnlyHeaders
	}
	for _, name := range headers {
		value := msg.Header(name)
		if value == "" {
			continue
		}
		for _, addr := range Addresses(value) {
			if addr == target {
				return true
			}
		}
	}
	return false
}

var looseAddrRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+`)

// Addresses parses a decoded address header into lowercase addresses.
// Headers net/mail rejects are scanned leniently so that a malformed
// display name never hides a real participant.
func Addresses(value string) []string {
	if list, err := mail.ParseAddressList(value); err == nil {
		addrs := make([]string, 0, len(list))
		for _, a := range list {
			if a.Address != "" {
				addrs = append(addrs, strings.ToLower(a.Address))
			}
		}
		return addrs
	}

	raw := looseAddrRe.FindAllString(value, -1)
	addrs := make([]string, 0, len(raw))
	for _, a := range raw {
		addrs = append(addrs, strings.ToLower(a))
	}
	return addrs
}
