// internal/template/resolve.go
package template

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Button is the one shape both campaign-level and template-level buttons
// expose. It replaces any need to duck-type across the two structs.
type Button interface {
	ButtonKind() string
	ButtonValue() string
}

// Process-wide immutable patterns, initialized once.
var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

	// trailingPlaceholderRe matches a single placeholder at the very end of a
	// button value, e.g. "https://trk.example.com/c/{{1}}".
	trailingPlaceholderRe = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_]+\s*\}\}\s*$`)
)

// PhoneToken is the reserved substitution available in button URL templates.
const PhoneToken = "phone"

// IsDynamic reports whether a button's declared destination contains a
// placeholder, i.e. must be resolved per recipient.
func IsDynamic(b Button) bool {
	return placeholderRe.MatchString(b.ButtonValue())
}

// NormalizeBodyParams pads/trims params to exactly required entries. Any
// blank slot after that is a hard failure for the recipient.
func NormalizeBodyParams(params []string, required int) ([]string, error) {
	out := make([]string, required)
	filled := 0
	for i := 0; i < required; i++ {
		if i < len(params) {
			out[i] = strings.TrimSpace(params[i])
		}
		if out[i] != "" {
			filled++
		}
	}
	if filled < required {
		return nil, fmt.Errorf("missing body parameter(s): expected %d, got %d", required, filled)
	}
	return out, nil
}

// FillPlaceholders substitutes {{n}} with the n-th body parameter and
// {{phone}} with the recipient's phone (digits only, no +). Unknown tokens
// are left untouched.
func FillPlaceholders(s string, body []string, phone string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		token := placeholderRe.FindStringSubmatch(match)[1]
		if strings.EqualFold(token, PhoneToken) {
			return strings.TrimPrefix(phone, "+")
		}
		if n, err := strconv.Atoi(token); err == nil && n >= 1 && n <= len(body) {
			return body[n-1]
		}
		return match
	})
}

// validateDestination checks the resolved button destination is an absolute
// http(s) URL, a tel: link or a WhatsApp deep link.
func validateDestination(dest string) error {
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("button destination is not a valid URL: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("button destination %q is not absolute", dest)
		}
		return nil
	case "tel", "whatsapp":
		return nil
	}
	return fmt.Errorf("button destination %q has unsupported scheme %q", dest, u.Scheme)
}

// hasShortTokenBase reports whether the template's own button value is an
// absolute http(s) base URL with a single trailing placeholder. In that shape
// the provider only ever receives the short token, never the full URL, which
// keeps provider-side parameter length limits satisfied.
func hasShortTokenBase(templateValue string) bool {
	base := trailingPlaceholderRe.ReplaceAllString(templateValue, "")
	if base == templateValue {
		return false
	}
	u, err := url.Parse(base)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// clickToken derives the opaque token recorded on a tracked link. A retried
// send rebuilds the same payload and must carry the same token, so the token
// is a name-based UUID over the campaign/recipient/destination triple rather
// than a random one.
func clickToken(campaignID, recipientID int, destination string) string {
	name := fmt.Sprintf("%d|%d|%s", campaignID, recipientID, destination)
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}
