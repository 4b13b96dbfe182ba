package wiki2html

import (
	"strings"

	"github.com/arran4/wiki2html/ast"
)

type emphasisTag int

const (
	boldOpen emphasisTag = iota
	boldClose
	italicOpen
	italicClose
)

func (t emphasisTag) String() string {
	switch t {
	case boldOpen:
		return "<b>"
	case boldClose:
		return "</b>"
	case italicOpen:
		return "<i>"
	default:
		return "</i>"
	}
}

type pendingTag struct {
	tag emphasisTag
	// index is the position, counted in toggles, at which the tag is
	// written.
	index int
}

// emphasisQueue is a FIFO of tags waiting to be written.
type emphasisQueue struct {
	tags []pendingTag
}

func (q *emphasisQueue) push(index int, tags ...emphasisTag) {
	for _, t := range tags {
		q.tags = append(q.tags, pendingTag{tag: t, index: index})
	}
}

// drainIndex removes the tags at the front of the queue that belong to
// toggle index.
func (q *emphasisQueue) drainIndex(index int) []emphasisTag {
	var tags []emphasisTag
	for len(q.tags) > 0 && q.tags[0].index == index {
		tags = append(tags, q.tags[0].tag)
		q.tags = q.tags[1:]
	}
	return tags
}

func tagsHTML(tags []emphasisTag) string {
	var sb strings.Builder
	for _, t := range tags {
		sb.WriteString(t.String())
	}
	return sb.String()
}

// trackOpen applies tags to open, the stack of tags written but not yet
// closed, outermost first.
func trackOpen(open, tags []emphasisTag) []emphasisTag {
	for _, t := range tags {
		switch t {
		case boldOpen, italicOpen:
			open = append(open, t)
			continue
		}
		want := boldOpen
		if t == italicClose {
			want = italicOpen
		}
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == want {
				open = append(open[:i], open[i+1:]...)
				break
			}
		}
	}
	return open
}

// closing returns the tag that closes an open tag.
func closing(t emphasisTag) emphasisTag {
	if t == italicOpen {
		return italicClose
	}
	return boldClose
}

// drain removes and renders every queued tag.
func (q *emphasisQueue) drain() string {
	var sb strings.Builder
	for _, t := range q.tags {
		sb.WriteString(t.tag.String())
	}
	q.tags = q.tags[:0]
	return sb.String()
}

type emphasis int

const (
	emphasisNone emphasis = iota
	emphasisBold
	emphasisItalic
	// emphasisBoth is a ''''' toggle.
	emphasisBoth
)

// emphasisState records the outer and inner open tag.
type emphasisState struct {
	first, last emphasis
}

type transitionKey struct {
	state  emphasisState
	toggle emphasis
}

type transition struct {
	emit []emphasisTag
	next emphasisState
}

var (
	stateNone       = emphasisState{}
	stateBold       = emphasisState{first: emphasisBold}
	stateItalic     = emphasisState{first: emphasisItalic}
	stateBoldItalic = emphasisState{first: emphasisBold, last: emphasisItalic}
	stateItalicBold = emphasisState{first: emphasisItalic, last: emphasisBold}
)

var emphasisTransitions = map[transitionKey]transition{
	{stateNone, emphasisBold}:       {[]emphasisTag{boldOpen}, stateBold},
	{stateItalic, emphasisBold}:     {[]emphasisTag{boldOpen}, stateItalicBold},
	{stateItalicBold, emphasisBold}: {[]emphasisTag{boldClose}, stateItalic},
	{stateBold, emphasisBold}:       {[]emphasisTag{boldClose}, stateNone},
	// Closing the outer tag while the inner is open closes both and
	// reopens the inner one.
	{stateBoldItalic, emphasisBold}: {[]emphasisTag{italicClose, boldClose, italicOpen}, stateItalic},

	{stateNone, emphasisItalic}:       {[]emphasisTag{italicOpen}, stateItalic},
	{stateBold, emphasisItalic}:       {[]emphasisTag{italicOpen}, stateBoldItalic},
	{stateBoldItalic, emphasisItalic}: {[]emphasisTag{italicClose}, stateBold},
	{stateItalic, emphasisItalic}:     {[]emphasisTag{italicClose}, stateNone},
	{stateItalicBold, emphasisItalic}: {[]emphasisTag{boldClose, italicClose, boldOpen}, stateBold},

	{stateBold, emphasisBoth}:       {[]emphasisTag{boldClose, italicOpen}, stateItalic},
	{stateBoldItalic, emphasisBoth}: {[]emphasisTag{italicClose, boldClose}, stateNone},
	{stateItalic, emphasisBoth}:     {[]emphasisTag{italicClose, boldOpen}, stateBold},
	{stateItalicBold, emphasisBoth}: {[]emphasisTag{boldClose, italicClose}, stateNone},
}

func toggleKind(n ast.Node) (emphasis, bool) {
	switch n.(type) {
	case *ast.Bold:
		return emphasisBold, true
	case *ast.Italic:
		return emphasisItalic, true
	case *ast.BoldItalic:
		return emphasisBoth, true
	}
	return emphasisNone, false
}

func isToggle(n ast.Node) bool {
	_, ok := toggleKind(n)
	return ok
}

// step applies one toggle to st, queueing the tags it produces at index.
func step(st emphasisState, toggle emphasis, index int, q *emphasisQueue) (emphasisState, error) {
	t, ok := emphasisTransitions[transitionKey{st, toggle}]
	if !ok {
		return st, ErrMalformedEmphasis
	}
	q.push(index, t.emit...)
	return t.next, nil
}

// closedEarly records the emphasis kinds a boundary closed while their
// toggles were still open. The toggle that would have closed one is
// consumed without output, so text after a paragraph break is never
// wrapped in a tag opened by a stray closer.
type closedEarly struct {
	bold, italic bool
}

// consume removes from c the kinds toggle would close and returns what is
// left of the toggle.
func (c *closedEarly) consume(toggle emphasis) emphasis {
	switch toggle {
	case emphasisBold:
		if c.bold {
			c.bold = false
			return emphasisNone
		}
	case emphasisItalic:
		if c.italic {
			c.italic = false
			return emphasisNone
		}
	case emphasisBoth:
		switch {
		case c.bold && c.italic:
			c.bold, c.italic = false, false
			return emphasisNone
		case c.bold:
			c.bold = false
			return emphasisItalic
		case c.italic:
			c.italic = false
			return emphasisBold
		}
	}
	return toggle
}

func (c *closedEarly) add(e emphasis) {
	switch e {
	case emphasisBold:
		c.bold = true
	case emphasisItalic:
		c.italic = true
	}
}

// reconcileEmphasis queues balanced tags for the toggles in one inline run.
// early holds the kinds the previous boundary closed; the returned value
// adds those this run leaves open for the next boundary to close.
//
// A ''''' with nothing open opens both tags, but the nesting order depends
// on which one is closed first, so the decision waits for the next toggle:
// '' next gives <b><i>, anything else gives <i><b>. Tags still open at the
// end of the run are closed innermost first.
func reconcileEmphasis(run []ast.Node, q *emphasisQueue, early closedEarly) (closedEarly, error) {
	st := stateNone
	both := -1
	index := 0
	for _, n := range run {
		toggle, ok := toggleKind(n)
		if !ok {
			continue
		}
		toggle = early.consume(toggle)
		switch {
		case toggle == emphasisNone:
		case both >= 0:
			switch toggle {
			case emphasisItalic:
				q.push(both, boldOpen, italicOpen)
				q.push(index, italicClose)
				st = stateBold
			case emphasisBold:
				q.push(both, italicOpen, boldOpen)
				q.push(index, boldClose)
				st = stateItalic
			default:
				q.push(both, italicOpen, boldOpen)
				q.push(index, boldClose, italicClose)
				st = stateNone
			}
			both = -1
		case st == stateNone && toggle == emphasisBoth:
			both = index
		default:
			var err error
			if st, err = step(st, toggle, index, q); err != nil {
				return early, err
			}
		}
		index++
	}
	if both >= 0 {
		q.push(both, italicOpen, boldOpen)
		q.push(index, boldClose, italicClose)
		early.add(emphasisBold)
		early.add(emphasisItalic)
		return early, nil
	}
	if err := closeAll(st, index, q); err != nil {
		return early, err
	}
	early.add(st.first)
	early.add(st.last)
	return early, nil
}

func closeAll(st emphasisState, index int, q *emphasisQueue) error {
	if st.first == emphasisNone && st.last != emphasisNone {
		return ErrMalformedEmphasis
	}
	for _, e := range []emphasis{st.last, st.first} {
		switch e {
		case emphasisBold:
			q.push(index, boldClose)
		case emphasisItalic:
			q.push(index, italicClose)
		}
	}
	return nil
}
