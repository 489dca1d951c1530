// Package contentfilter classifies free text against a blocklist and an
// allowlist of contextual phrases, and records rejected text per user.
package contentfilter

import (
	"context"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Reason is attached to every rejection.
const Reason = "Content contains potentially harmful or inappropriate material"

// ReplacementMessage replaces rejected assistant output.
const ReplacementMessage = "I cannot provide assistance with that request as it may involve harmful or inappropriate content. Please ask something else related to Roblox game development."

var defaultBlocklist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(hack|exploit|cheat|virus|malware)\b`),
	regexp.MustCompile(`(?i)\b(steal|password|credit\s*card)\b`),
	regexp.MustCompile(`(?i)\b(inappropriate|nsfw|adult)\b`),
	regexp.MustCompile(`(?i)\b(violence|weapon|bomb)\b`),
}

// Allowlist phrases match anywhere in the text, including inside longer
// words such as "protections" or "preventing".
var defaultAllowlist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)anti[- ]?cheat`),
	regexp.MustCompile(`(?i)security`),
	regexp.MustCompile(`(?i)protection`),
	regexp.MustCompile(`(?i)prevent`),
}

// Result is the outcome of a classification.
type Result struct {
	Allowed bool
	Reason  string
	// Match is the blocklisted term that triggered the rejection.
	Match string
}

// Recorder stores flagged messages.
type Recorder interface {
	RecordFlag(ctx context.Context, userID uint64, message, reason string) error
}

// Filter is stateless apart from its optional Recorder.
type Filter struct {
	blocklist []*regexp.Regexp
	allowlist []*regexp.Regexp
	recorder  Recorder
}

// New returns a Filter with the default rule sets. recorder may be nil.
func New(recorder Recorder) *Filter {
	return &Filter{
		blocklist: defaultBlocklist,
		allowlist: defaultAllowlist,
		recorder:  recorder,
	}
}

// Classify checks text without recording anything.
func (f *Filter) Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Allowed: true}
	}
	for _, re := range f.allowlist {
		if re.MatchString(text) {
			return Result{Allowed: true}
		}
	}
	for _, re := range f.blocklist {
		if match := re.FindString(text); match != "" {
			return Result{Allowed: false, Reason: Reason, Match: match}
		}
	}
	return Result{Allowed: true}
}

// CheckMessage classifies a user's message and records a flag on rejection.
func (f *Filter) CheckMessage(ctx context.Context, userID uint64, text string) Result {
	result := f.Classify(text)
	if result.Allowed || f.recorder == nil {
		return result
	}
	if errRecord := f.recorder.RecordFlag(ctx, userID, text, result.Reason); errRecord != nil {
		log.WithError(errRecord).WithField("user_id", userID).Warn("content filter: record flag failed")
	}
	return result
}

// FilterResponse returns text unchanged when allowed, or the replacement message.
func (f *Filter) FilterResponse(text string) (string, bool) {
	if f.Classify(text).Allowed {
		return text, false
	}
	return ReplacementMessage, true
}
