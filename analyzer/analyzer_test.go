package analyzer

import (
	"errors"
	"strings"
	"testing"
)

func TestStripRemovesCSISequences(t *testing.T) {
	cases := map[string]string{
		"\x1b[?25l\x1b[?25hhello":       "hello",
		"\x1b[1Gline\x1b[K\n":           "line\n",
		"\x1b[38;5;252mcolored\x1b[0m":  "colored",
		"\u009b2Kbare 8-bit introducer": "bare 8-bit introducer",
		"\x1b\x1b[m[mnested":            "nested",
	}
	for in, want := range cases {
		if got := Strip(in); got != want {
			t.Errorf("Strip(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripIdentityOnCleanText(t *testing.T) {
	inputs := []string{
		"",
		"line1\nline2\n",
		"GET /index.html HTTP/1.1\r\nHost: example.com\r\n",
		"brackets [like] this and ESC-free text",
		"unicode ✓ ünïcödé",
	}
	for _, in := range inputs {
		if got := Strip(in); got != in {
			t.Errorf("Strip(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestStripIdempotent(t *testing.T) {
	inputs := []string{
		"\x1b[2K\x1b[1Gpartial",
		"\x1b\x1b\x1b[m[m[mtext",
		"\x1b[",
		"trailing escape \x1b",
		"\u009b\u009b1m1mx",
	}
	for _, in := range inputs {
		once := Strip(in)
		if twice := Strip(once); twice != once {
			t.Errorf("Strip not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestPayloadSections(t *testing.T) {
	req := AnalysisRequest{
		RequestText:     "GET / HTTP/1.1",
		ResponseText:    "HTTP/1.1 200 OK",
		IncludeRequest:  true,
		IncludeResponse: true,
	}
	want := "===== REQUEST =====\nGET / HTTP/1.1\n\n===== RESPONSE =====\nHTTP/1.1 200 OK\n\n"
	if got := req.Payload(); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}

	req.IncludeRequest = false
	want = "===== RESPONSE =====\nHTTP/1.1 200 OK\n\n"
	if got := req.Payload(); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestInstructionAndArgs(t *testing.T) {
	req := AnalysisRequest{
		SystemInstruction: "be terse",
		CustomInstruction: "  find \"secrets\"  ",
		ModelName:         "llama3",
	}
	wantInstr := `Based on the following system instructions:[ be terse ]  find "secrets" `
	if got := req.Instruction(); got != wantInstr {
		t.Fatalf("want %q, got %q", wantInstr, got)
	}

	args := req.Args()
	if len(args) != 3 || args[0] != "run" || args[1] != "llama3" || args[2] != wantInstr {
		t.Fatalf("unexpected args: %q", args)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  AnalysisRequest
		ok   bool
	}{
		{"both flags off", AnalysisRequest{RequestText: "x", ResponseText: "y"}, false},
		{"request blank", AnalysisRequest{RequestText: "  \n", IncludeRequest: true}, false},
		{"response only", AnalysisRequest{ResponseText: "y", IncludeResponse: true}, true},
		{"included blank, other excluded", AnalysisRequest{RequestText: " ", ResponseText: "y", IncludeRequest: true}, false},
		{"one of two blank", AnalysisRequest{RequestText: "x", ResponseText: "", IncludeRequest: true, IncludeResponse: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				if !strings.Contains(ve.Error(), "invalid analysis request") {
					t.Fatalf("unexpected message %q", ve.Error())
				}
			}
		})
	}
}
