package analyzer

import "regexp"

// csiPattern matches a Control Sequence Introducer (7-bit ESC [ or the 8-bit
// U+009B form) followed by parameter bytes, intermediate bytes and a final byte.
var csiPattern = regexp.MustCompile(`(\x{9B}|\x1B\[)[0-?]*[ -/]*[@-~]`)

// Strip removes terminal CSI sequences from decoded model output.
//
// Removing one sequence can join an orphan ESC with the text after it into
// a new sequence, so Strip repeats until nothing matches. This keeps
// Strip(Strip(x)) == Strip(x).
func Strip(chunk string) string {
	for {
		cleaned := csiPattern.ReplaceAllString(chunk, "")
		if cleaned == chunk {
			return cleaned
		}
		chunk = cleaned
	}
}
