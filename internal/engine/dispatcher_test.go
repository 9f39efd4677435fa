package engine

import (
	"reflect"
	"testing"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

func text(s string) domain.IncomingMessage {
	return domain.IncomingMessage{Text: s, SenderID: "u1", Channel: "cli"}
}

func payload(p string) domain.IncomingMessage {
	return domain.IncomingMessage{Payload: p, SenderID: "u1", Channel: "cli"}
}

func TestDispatcher_AffirmativeMatchesPrefix(t *testing.T) {
	d := NewDispatcher(DefaultWordLists())

	cases := []struct {
		in   string
		want bool
	}{
		{"tak", true},
		{"TAK", true},
		{"takk pewnie", true}, // prefix, not whole-word
		{"mhm", true},
		{"no tak", false}, // affirmative word not at the start
		{"nie", false},
	}
	for _, tc := range cases {
		if got := d.IsAffirmative(text(tc.in)); got != tc.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDispatcher_CancellationMatchesAnywhere(t *testing.T) {
	d := NewDispatcher(DefaultWordLists())

	// Unlike affirmative/negative, cancellation and submission words match
	// anywhere in the text.
	if !d.IsCancel(text("proszę STOP teraz")) {
		t.Error("expected cancellation word in the middle of the text to match")
	}
	if !d.IsSubmit(text("no to koniec")) {
		t.Error("expected submission word in the middle of the text to match")
	}
	if d.IsCancel(text("zupa pomidorowa")) {
		t.Error("unexpected cancellation match")
	}
}

func TestDispatcher_PayloadSentinels(t *testing.T) {
	d := NewDispatcher(DefaultWordLists())

	if !d.IsAffirmative(payload(PayloadAffirmative)) {
		t.Error("AFFIRMATIVE payload should classify as affirmative")
	}
	if !d.IsNegative(payload(PayloadNegative)) {
		t.Error("NEGATIVE payload should classify as negative")
	}
	if !d.IsSubmit(payload(PayloadSubmit)) {
		t.Error("SUBMIT payload should classify as submit")
	}
	if !d.IsCancel(payload(PayloadCancel)) {
		t.Error("CANCEL payload should classify as cancel")
	}

	// Payload matching is exact and case-sensitive.
	if d.IsCancel(payload("cancel")) {
		t.Error("lowercase payload must not match the sentinel")
	}
}

func TestDispatcher_ExtractCodes(t *testing.T) {
	d := NewDispatcher(DefaultWordLists())

	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "three codes, one split by a space",
			in:   "1234567890123, 1234567890123, 1234567 890123",
			want: []string{"1234567890123", "1234567890123", "1234567890123"},
		},
		{
			name: "fourteen digits never match",
			in:   "12345678901234",
			want: nil,
		},
		{
			name: "ean8",
			in:   "kod 12345678.",
			want: []string{"12345678"},
		},
		{
			name: "embedded in a word",
			in:   "abc1234567890123",
			want: nil,
		},
		{
			name: "terminated by letter",
			in:   "1234567890123abc",
			want: nil,
		},
		{
			name: "question mark terminator",
			in:   "czy 1234567890123?",
			want: []string{"1234567890123"},
		},
		{
			name: "duplicates preserved",
			in:   "12345678 12345678",
			want: []string{"12345678", "12345678"},
		},
	}

	for _, tc := range cases {
		got := d.ExtractCodes(text(tc.in))
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: ExtractCodes(%q) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestDispatcher_ClassifyPrecedence(t *testing.T) {
	d := NewDispatcher(DefaultWordLists())

	// An image attachment wins over everything else.
	img := domain.IncomingMessage{
		Text:        "STOP 1234567890123",
		Attachments: []domain.Attachment{{Type: domain.AttachmentImage, URL: "https://x/y.jpg"}},
	}
	if got := d.Classify(img).Intent; got != IntentImage {
		t.Errorf("Classify with image = %v, want %v", got, IntentImage)
	}

	// Cancellation wins over a code in the same message.
	if got := d.Classify(text("STOP 1234567890123")).Intent; got != IntentCancel {
		t.Errorf("cancel+code = %v, want %v", got, IntentCancel)
	}

	// A code wins over an affirmative prefix.
	if got := d.Classify(text("tak 1234567890123")).Intent; got != IntentCode {
		t.Errorf("affirmative+code = %v, want %v", got, IntentCode)
	}

	if got := d.Classify(payload(PayloadHelp)).Intent; got != IntentHelp {
		t.Errorf("HELP payload = %v, want %v", got, IntentHelp)
	}
	if got := d.Classify(payload(PayloadMethodology)).Intent; got != IntentMethodology {
		t.Errorf("METHODOLOGY payload = %v, want %v", got, IntentMethodology)
	}

	if got := d.Classify(text("dzień dobry")).Intent; got != IntentText {
		t.Errorf("plain text = %v, want %v", got, IntentText)
	}
}

func TestCollapseDigitSpaces(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"123 456", "123456"},
		{"123   456", "123456"},
		{"123 abc", "123 abc"},
		{"abc 123", "abc 123"},
		{"1 2 3", "123"},
		{"123 ", "123 "},
	}
	for _, tc := range cases {
		if got := collapseDigitSpaces(tc.in); got != tc.want {
			t.Errorf("collapseDigitSpaces(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
