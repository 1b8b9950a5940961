package util

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// TimeLayout is the stored created_at format. Millisecond precision with a
// fixed Z suffix keeps lexicographic order equal to time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

func NormalizePhone(p string) string {
	// TODO -  may use libphonenumber
	p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
	return strings.TrimPrefix(p, "+")
}

func NewMessageID() string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return "msg_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewDryRunID returns a synthetic provider id for simulated sends.
func NewDryRunID() string {
	return "wamid.DRYRUN." + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var brPhone = regexp.MustCompile(`^(\+?55)(\d{2})(\d{4,5})(\d{4})$`)

// MaskPhone hides the middle digits of a phone number for logs.
func MaskPhone(p string) string {
	if p == "" {
		return p
	}
	if m := brPhone.FindStringSubmatch(p); m != nil {
		return m[1] + m[2] + strings.Repeat("*", len(m[3])) + m[4]
	}
	if len(p) <= 6 {
		return strings.Repeat("*", len(p))
	}
	return p[:4] + strings.Repeat("*", len(p)-6) + p[len(p)-2:]
}
