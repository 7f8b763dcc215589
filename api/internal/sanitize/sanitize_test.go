package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "صبح ایک گولی لیں", "صبح ایک گولی لیں"},
		{"bold and spacing", "**Hello**\n\n\n\nWorld  !", "Hello\n\nWorld !"},
		{"markup chars", "dose: #1 _daily_ ~maybe~ `code`", "dose: 1 daily maybe code"},
		{"asterisk runs", "***a** * b*", "a b"},
		{"paragraphs kept", "para one\n\npara two", "para one\n\npara two"},
		{"line trim", "  lead\ntrail  \n mid line ", "lead\ntrail\nmid line"},
		{"blank-ish lines", "a\n  \n  \n  \nb", "a\n\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Text(tc.in); got != tc.want {
				t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"**Hello**\n\n\n\nWorld  !",
		"a\n \n \n \nb",
		"  *x*  \n\n\n\n\n#y#\t\n z  z ",
		"آپ کو روزانہ صبح ایک گولی لینا ہے۔\n\n\nضرورت کے وقت لے لیں۔",
		"* * * mixed ** runs\n\n\n\n\n\nand   spaces",
	}
	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}
