package session

import "regexp"

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// Segment is a piece of rendered chat text; Link segments are clickable.
type Segment struct {
	Text string
	Link bool
}

// Linkify splits text into plain and http(s) link segments.
func Linkify(text string) []Segment {
	var out []Segment
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, Segment{Text: text[last:loc[0]]})
		}
		out = append(out, Segment{Text: text[loc[0]:loc[1]], Link: true})
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, Segment{Text: text[last:]})
	}
	return out
}
