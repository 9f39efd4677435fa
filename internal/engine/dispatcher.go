package engine

import (
	"regexp"
	"strings"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// Structured payload sentinels recognized by the dispatcher. Case-sensitive,
// exact match; they satisfy an intent independently of the message text.
const (
	PayloadAffirmative = "AFFIRMATIVE"
	PayloadNegative    = "NEGATIVE"
	PayloadSubmit      = "SUBMIT"
	PayloadCancel      = "CANCEL"
	PayloadHelp        = "HELP"
	PayloadInfo        = "INFO"
	PayloadMethodology = "METHODOLOGY"
)

// Intent is the dispatcher's classification of a normalized message.
type Intent string

const (
	IntentImage       Intent = "image"
	IntentCancel      Intent = "cancel"
	IntentSubmit      Intent = "submit"
	IntentCode        Intent = "code"
	IntentAffirmative Intent = "affirmative"
	IntentNegative    Intent = "negative"
	IntentHelp        Intent = "help"
	IntentInfo        Intent = "info"
	IntentMethodology Intent = "methodology"
	IntentText        Intent = "text"
)

// AllIntents lists every intent the dispatcher can produce. The state machine
// validates transition totality against this set.
func AllIntents() []Intent {
	return []Intent{
		IntentImage,
		IntentCancel,
		IntentSubmit,
		IntentCode,
		IntentAffirmative,
		IntentNegative,
		IntentHelp,
		IntentInfo,
		IntentMethodology,
		IntentText,
	}
}

// Classification is the dispatcher's full verdict for one message.
type Classification struct {
	Intent Intent
	Codes  []string
}

// WordLists holds the configurable dispatcher vocabularies. Matching is
// case-insensitive; affirmative/negative match on prefix, submission and
// cancellation match on containment.
type WordLists struct {
	Affirmative  []string `json:"affirmative" yaml:"affirmative"`
	Negative     []string `json:"negative" yaml:"negative"`
	Submission   []string `json:"submission" yaml:"submission"`
	Cancellation []string `json:"cancellation" yaml:"cancellation"`
}

// DefaultWordLists returns the Polish vocabularies the reply texts were tuned
// against.
func DefaultWordLists() WordLists {
	return WordLists{
		Affirmative:  []string{"TAK", "MHM"},
		Negative:     []string{"NIE"},
		Submission:   []string{"OK", "KONIEC", "GOTOWE", "ZATWIERDZAM"},
		Cancellation: []string{"STOP", "ANULUJ"},
	}
}

// Merge overrides the receiver's lists with the non-empty lists of other.
func (w WordLists) Merge(other WordLists) WordLists {
	if len(other.Affirmative) > 0 {
		w.Affirmative = other.Affirmative
	}
	if len(other.Negative) > 0 {
		w.Negative = other.Negative
	}
	if len(other.Submission) > 0 {
		w.Submission = other.Submission
	}
	if len(other.Cancellation) > 0 {
		w.Cancellation = other.Cancellation
	}
	return w
}

var digitRunPattern = regexp.MustCompile(`[0-9]+`)

// Dispatcher classifies incoming messages by word-list and pattern matching.
type Dispatcher struct {
	affirmative  []string
	negative     []string
	submission   []string
	cancellation []string
}

func NewDispatcher(lists WordLists) *Dispatcher {
	return &Dispatcher{
		affirmative:  upperAll(lists.Affirmative),
		negative:     upperAll(lists.Negative),
		submission:   upperAll(lists.Submission),
		cancellation: upperAll(lists.Cancellation),
	}
}

// IsAffirmative reports whether the text starts with an affirmative word or
// the payload carries the AFFIRMATIVE sentinel.
func (d *Dispatcher) IsAffirmative(msg domain.IncomingMessage) bool {
	return startsWithAny(strings.ToUpper(msg.Text), d.affirmative) || msg.Payload == PayloadAffirmative
}

// IsNegative reports whether the text starts with a negative word or the
// payload carries the NEGATIVE sentinel.
func (d *Dispatcher) IsNegative(msg domain.IncomingMessage) bool {
	return startsWithAny(strings.ToUpper(msg.Text), d.negative) || msg.Payload == PayloadNegative
}

// IsSubmit reports whether the text contains a submission word anywhere or
// the payload carries the SUBMIT sentinel.
func (d *Dispatcher) IsSubmit(msg domain.IncomingMessage) bool {
	return containsAny(strings.ToUpper(msg.Text), d.submission) || msg.Payload == PayloadSubmit
}

// IsCancel reports whether the text contains a cancellation word anywhere or
// the payload carries the CANCEL sentinel.
func (d *Dispatcher) IsCancel(msg domain.IncomingMessage) bool {
	return containsAny(strings.ToUpper(msg.Text), d.cancellation) || msg.Payload == PayloadCancel
}

// HasImage reports whether the message carries at least one image attachment.
func (d *Dispatcher) HasImage(msg domain.IncomingMessage) bool {
	return msg.HasAttachmentType(domain.AttachmentImage)
}

// ExtractCodes returns every standalone EAN-13 or EAN-8 digit sequence in the
// message text, left to right, duplicates included. Spaces separating digits
// are collapsed first, so a code typed in chunks still counts as one run. A
// maximal digit run of any other length never matches.
func (d *Dispatcher) ExtractCodes(msg domain.IncomingMessage) []string {
	text := collapseDigitSpaces(msg.Text)

	var codes []string
	for _, loc := range digitRunPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if n := end - start; n != 13 && n != 8 {
			continue
		}
		if !boundedBefore(text, start) || !boundedAfter(text, end) {
			continue
		}
		codes = append(codes, text[start:end])
	}
	return codes
}

// Classify reduces the boolean queries to the single primary intent that
// drives the state machine.
func (d *Dispatcher) Classify(msg domain.IncomingMessage) Classification {
	if d.HasImage(msg) {
		return Classification{Intent: IntentImage}
	}
	if d.IsCancel(msg) {
		return Classification{Intent: IntentCancel}
	}
	if d.IsSubmit(msg) {
		return Classification{Intent: IntentSubmit}
	}
	if codes := d.ExtractCodes(msg); len(codes) > 0 {
		return Classification{Intent: IntentCode, Codes: codes}
	}
	if d.IsAffirmative(msg) {
		return Classification{Intent: IntentAffirmative}
	}
	if d.IsNegative(msg) {
		return Classification{Intent: IntentNegative}
	}
	switch msg.Payload {
	case PayloadHelp:
		return Classification{Intent: IntentHelp}
	case PayloadInfo:
		return Classification{Intent: IntentInfo}
	case PayloadMethodology:
		return Classification{Intent: IntentMethodology}
	}
	return Classification{Intent: IntentText}
}

// collapseDigitSpaces removes runs of spaces that sit between two digits.
func collapseDigitSpaces(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	var last byte
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' && isDigit(last) {
			j := i
			for j < len(s) && s[j] == ' ' {
				j++
			}
			if j < len(s) && isDigit(s[j]) {
				i = j - 1
				continue
			}
		}
		sb.WriteByte(s[i])
		last = s[i]
	}
	return sb.String()
}

// boundedBefore reports whether position start is preceded by start-of-string
// or whitespace.
func boundedBefore(s string, start int) bool {
	if start == 0 {
		return true
	}
	return isSpace(s[start-1])
}

// boundedAfter reports whether position end is followed by end-of-string,
// whitespace, or sentence punctuation.
func boundedAfter(s string, end int) bool {
	if end == len(s) {
		return true
	}
	c := s[end]
	return isSpace(c) || c == '.' || c == ',' || c == ';' || c == '?'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func startsWithAny(text string, words []string) bool {
	for _, w := range words {
		if strings.HasPrefix(text, w) {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func upperAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToUpper(w)
	}
	return out
}
