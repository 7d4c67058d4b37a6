package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/radiowave/station-backend/internal/db/models"
)

const (
	maxChangeEntries   = 3
	maxChangeValueLen  = 30
	truncationEllipsis = "..."
)

// Renderer turns stored activity records into sentences for one locale.
// It is a pure value; the zero Renderer renders English.
type Renderer struct {
	locale Locale
}

// NewRenderer returns a Renderer for locale
func NewRenderer(locale Locale) Renderer {
	return Renderer{locale: ParseLocale(string(locale))}
}

// Locale returns the renderer's locale
func (r Renderer) Locale() Locale {
	if r.locale == "" {
		return LocaleEnglish
	}
	return r.locale
}

var defaultRenderer = NewRenderer(LocaleEnglish)

// Describe renders a record with the default (English) renderer
func Describe(action models.Action, entityType *string, entityID *int64, metadata models.Metadata) string {
	return defaultRenderer.Describe(action, entityType, entityID, metadata)
}

// FormatChanges summarizes a changes document with the default renderer
func FormatChanges(raw json.RawMessage) string {
	return defaultRenderer.FormatChanges(raw)
}

// FormatUserInfo renders the acting user with the default renderer
func FormatUserInfo(info UserInfo) string {
	return defaultRenderer.FormatUserInfo(info)
}

// Describe renders one activity record as a sentence. It never fails: malformed
// or missing metadata only drops the clauses that would have used it.
func (r Renderer) Describe(action models.Action, entityType *string, entityID *int64, metadata models.Metadata) string {
	c := catalogFor(r.Locale())
	meta := metadata.Fields()
	path := metaString(meta, "path")

	var b strings.Builder
	switch action {
	case models.ActionLogin:
		if who := displayName(meta); who != "" {
			fmt.Fprintf(&b, c.loginNamed, who)
		} else {
			b.WriteString(c.loginAnon)
		}
		writePath(&b, c, path)

	case models.ActionLogout:
		b.WriteString(c.logout)
		writePath(&b, c, path)

	case models.ActionLoginFailed:
		email := metaString(meta, "email")
		if email == "" {
			email = c.unknownEmail
		}
		fmt.Fprintf(&b, c.loginFailed, email)
		writeReason(&b, c, metaString(meta, "reason"))

	case models.ActionAccessDenied:
		b.WriteString(c.accessDenied)
		writePath(&b, c, path)
		writeReason(&b, c, metaString(meta, "reason"))

	case models.ActionCreate:
		fmt.Fprintf(&b, c.created, r.entityRef(entityType, entityID))
		writePath(&b, c, path)

	case models.ActionUpdate:
		fmt.Fprintf(&b, c.updated, r.entityRef(entityType, entityID))
		writePath(&b, c, path)
		if changes, ok := meta["changes"]; ok {
			fmt.Fprintf(&b, c.changesSuffix, r.FormatChanges(changes))
		}

	case models.ActionDelete:
		fmt.Fprintf(&b, c.deleted, r.entityRef(entityType, entityID))
		writePath(&b, c, path)

	case models.ActionEdit:
		fmt.Fprintf(&b, c.edited, r.entityRef(entityType, entityID))
		writePath(&b, c, path)

	case models.ActionRead:
		fmt.Fprintf(&b, c.viewed, r.entityRef(entityType, entityID))
		writePath(&b, c, path)
		if filters := compactObject(meta["filters"]); filters != "" {
			fmt.Fprintf(&b, c.filtersSuffix, filters)
		} else if query := compactObject(meta["query"]); query != "" {
			fmt.Fprintf(&b, c.filtersSuffix, query)
		}

	case models.ActionSystemStart:
		b.WriteString(c.systemStart)
		writeReason(&b, c, metaString(meta, "reason"))

	case models.ActionSystemStop:
		b.WriteString(c.systemStop)
		writeReason(&b, c, metaString(meta, "reason"))

	case models.ActionSystemError:
		b.WriteString(c.systemError)
		reason := metaString(meta, "error")
		if reason == "" {
			reason = metaString(meta, "reason")
		}
		if reason != "" {
			b.WriteString(": ")
			b.WriteString(reason)
		}
		writePath(&b, c, path)

	default:
		fmt.Fprintf(&b, c.fallback, string(action))
		if entityType != nil && *entityType != "" || entityID != nil {
			b.WriteString(" - ")
			b.WriteString(r.entityRef(entityType, entityID))
		}
		writePath(&b, c, path)
	}

	return b.String()
}

// entityRef renders "<localized entity> #<id>", omitting whichever part is unknown
func (r Renderer) entityRef(entityType *string, entityID *int64) string {
	c := catalogFor(r.Locale())
	noun := c.record
	if entityType != nil && strings.TrimSpace(*entityType) != "" {
		noun = r.Locale().LocalizeEntity(*entityType)
	}
	if entityID != nil {
		return fmt.Sprintf("%s #%d", noun, *entityID)
	}
	return noun
}

func writePath(b *strings.Builder, c *catalog, path string) {
	if path != "" {
		fmt.Fprintf(b, c.pathSuffix, path)
	}
}

func writeReason(b *strings.Builder, c *catalog, reason string) {
	if reason != "" {
		fmt.Fprintf(b, c.reasonSuffix, reason)
	}
}

// FormatChanges summarizes a changes object as "key: value" pairs in document
// order. At most three entries are shown; long string values are truncated and
// the remainder is reported as a count. An empty object yields the "no changes"
// phrase; anything that is not an object yields the "no details" phrase.
func (r Renderer) FormatChanges(raw json.RawMessage) string {
	c := catalogFor(r.Locale())

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return c.noDetails
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return c.noDetails
	}

	var shown []string
	total := 0
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return c.noDetails
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return c.noDetails
		}

		total++
		if len(shown) < maxChangeEntries {
			shown = append(shown, key+": "+renderChangeValue(value))
		}
	}

	if total == 0 {
		return c.noChanges
	}
	out := strings.Join(shown, ", ")
	if rest := total - len(shown); rest > 0 {
		out += " " + fmt.Sprintf(c.andMore, rest)
	}
	return out
}

// renderChangeValue shows strings unquoted and truncated; other JSON values compactly.
func renderChangeValue(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return truncate(s, maxChangeValueLen)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + truncationEllipsis
}

// UserInfo is the identity known about the actor of a record
type UserInfo struct {
	UserID    *int64
	Name      *string
	LastName  *string
	Email     *string
	IPAddress string
}

// UserInfoFromView extracts the actor identity of a joined record
func UserInfoFromView(v *models.AuditLogView) UserInfo {
	return UserInfo{
		UserID:    v.UserID,
		Name:      v.UserName,
		LastName:  v.UserLastName,
		Email:     v.UserEmail,
		IPAddress: v.IPAddress,
	}
}

// FormatUserInfo renders the actor of a record, preferring the most complete identity:
// "Name Lastname (email)", then email, then name, then user id (with IP), then an
// anonymous client IP, and finally the system itself.
func (r Renderer) FormatUserInfo(info UserInfo) string {
	c := catalogFor(r.Locale())

	name := joinName(deref(info.Name), deref(info.LastName))
	email := strings.TrimSpace(deref(info.Email))
	ip := strings.TrimSpace(info.IPAddress)
	hasIP := ip != "" && ip != models.SystemIPAddress

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", name, email)
	case email != "":
		return email
	case name != "":
		return name
	case info.UserID != nil:
		s := fmt.Sprintf(c.userID, *info.UserID)
		if hasIP {
			s += fmt.Sprintf(c.withIP, ip)
		}
		return s
	case hasIP:
		return fmt.Sprintf(c.anonymous, ip)
	default:
		return c.system
	}
}

// ---------------------------------------------------------------------------
// metadata helpers
// ---------------------------------------------------------------------------

// metaString returns the first non-empty scalar among keys, as text.
func metaString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// displayName prefers a display name over the email address
func displayName(fields map[string]json.RawMessage) string {
	if name := joinName(metaString(fields, "name", "user_name"), metaString(fields, "last_name")); name != "" {
		return name
	}
	return metaString(fields, "email")
}

// compactObject returns a non-empty JSON object compacted, or "" for anything else
func compactObject(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
