package parser

import "strings"

// scanBalanced returns the index just past the construct that opens at
// s[i]. Openers are "{{{", "{{" and "[["; nested constructs of any of the
// three kinds are skipped. ok is false when the construct is not closed.
func scanBalanced(s string, i int) (end int, ok bool) {
	var stack []int
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "{{{") && !isTemplateOpen(s, i):
			stack = append(stack, 3)
			i += 3
		case strings.HasPrefix(s[i:], "{{"):
			stack = append(stack, 2)
			i += 2
		case strings.HasPrefix(s[i:], "[["):
			stack = append(stack, 'L')
			i += 2
		case len(stack) > 0 && stack[len(stack)-1] == 3 && strings.HasPrefix(s[i:], "}}}"):
			stack = stack[:len(stack)-1]
			i += 3
		case len(stack) > 0 && stack[len(stack)-1] == 2 && strings.HasPrefix(s[i:], "}}"):
			stack = stack[:len(stack)-1]
			i += 2
		case len(stack) > 0 && stack[len(stack)-1] == 'L' && strings.HasPrefix(s[i:], "]]"):
			stack = stack[:len(stack)-1]
			i += 2
		default:
			i++
			continue
		}
		if len(stack) == 0 {
			return i, true
		}
	}
	return 0, false
}

// isTemplateOpen reports whether the "{{{" at s[i] is really a template
// opener followed by a stray brace, as in "{{{{x}}}}" read from the left.
// Only four or more braces are treated that way.
func isTemplateOpen(s string, i int) bool {
	return strings.HasPrefix(s[i:], "{{{{")
}

// splitTopLevel splits s on sep, ignoring separators that appear inside
// nested {{ }}, {{{ }}} or [[ ]] constructs.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "{{") || strings.HasPrefix(s[i:], "[[") {
			if end, ok := scanBalanced(s, i); ok {
				i = end
				continue
			}
		}
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
		i++
	}
	return append(parts, s[start:])
}

// indexTopLevel is like strings.Index but skips matches inside nested
// constructs. It returns -1 when there is no top-level match.
func indexTopLevel(s, substr string) int {
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "{{") || strings.HasPrefix(s[i:], "[[") {
			if end, ok := scanBalanced(s, i); ok {
				i = end
				continue
			}
		}
		if strings.HasPrefix(s[i:], substr) {
			return i
		}
		i++
	}
	return -1
}

// lineState tracks constructs that can span physical lines.
type lineState struct {
	braces  int
	comment bool
	nowiki  bool
	rawTag  string
}

func (st *lineState) open() bool {
	return st.braces > 0 || st.comment || st.nowiki || st.rawTag != ""
}

var rawTags = []string{"syntaxhighlight", "source", "pre"}

// feed advances the state over one physical line.
func (st *lineState) feed(line string) {
	lower := strings.ToLower(line)
	for i := 0; i < len(line); {
		switch {
		case st.comment:
			j := strings.Index(line[i:], "-->")
			if j < 0 {
				return
			}
			st.comment = false
			i += j + 3
		case st.nowiki:
			j := strings.Index(lower[i:], "</nowiki>")
			if j < 0 {
				return
			}
			st.nowiki = false
			i += j + len("</nowiki>")
		case st.rawTag != "":
			closer := "</" + st.rawTag
			j := strings.Index(lower[i:], closer)
			if j < 0 {
				return
			}
			st.rawTag = ""
			i += j + len(closer)
		case strings.HasPrefix(line[i:], "<!--"):
			st.comment = true
			i += 4
		case strings.HasPrefix(lower[i:], "<nowiki>"):
			st.nowiki = true
			i += len("<nowiki>")
		case strings.HasPrefix(line[i:], "<"):
			i++
			for _, tag := range rawTags {
				if hasTagPrefix(lower[i:], tag) && !selfClosing(lower[i:]) {
					st.rawTag = tag
					i += len(tag)
					break
				}
			}
		case strings.HasPrefix(line[i:], "{{"):
			st.braces++
			i += 2
		case strings.HasPrefix(line[i:], "}}"):
			if st.braces > 0 {
				st.braces--
			}
			i += 2
		default:
			i++
		}
	}
}

// hasTagPrefix reports whether s starts with name followed by the end of
// a tag name.
func hasTagPrefix(s, name string) bool {
	if !strings.HasPrefix(s, name) {
		return false
	}
	if len(s) == len(name) {
		return true
	}
	switch s[len(name)] {
	case '>', ' ', '\t', '/':
		return true
	}
	return false
}

func selfClosing(s string) bool {
	end := strings.IndexByte(s, '>')
	return end > 0 && s[end-1] == '/'
}

// logicalLines splits text into lines, joining physical lines while a
// template, comment, nowiki or raw block opened on an earlier line is still
// open. Constructs left open at the end of the input do not join lines.
func logicalLines(text string) []string {
	physical := strings.Split(text, "\n")
	var lines []string
	var st lineState
	start := 0
	for i, line := range physical {
		st.feed(line)
		if !st.open() {
			lines = append(lines, strings.Join(physical[start:i+1], "\n"))
			start = i + 1
		}
	}
	if start < len(physical) {
		lines = append(lines, physical[start:]...)
	}
	return lines
}
