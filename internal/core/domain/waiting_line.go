package domain

// WaitingLine is an ordered, duplicate-free sequence of identities.
// It is not safe for concurrent use; the scheduler owns it under its own lock.
type WaitingLine struct {
	entries []Identity
}

func NewWaitingLine() *WaitingLine {
	return &WaitingLine{entries: make([]Identity, 0)}
}

func (l *WaitingLine) Len() int {
	return len(l.entries)
}

func (l *WaitingLine) Empty() bool {
	return len(l.entries) == 0
}

// Head returns the identity at the front of the line.
func (l *WaitingLine) Head() (Identity, bool) {
	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[0], true
}

// IndexOf returns the zero-based index of id, or -1.
func (l *WaitingLine) IndexOf(id Identity) int {
	for i, e := range l.entries {
		if e == id {
			return i
		}
	}
	return -1
}

func (l *WaitingLine) Contains(id Identity) bool {
	return l.IndexOf(id) >= 0
}

// Append puts id at the tail. An identity already present loses its place
// and is moved to the tail. It returns the new zero-based index.
func (l *WaitingLine) Append(id Identity) int {
	l.Remove(id)
	l.entries = append(l.entries, id)
	return len(l.entries) - 1
}

// Remove deletes id keeping the relative order of the remaining entries.
func (l *WaitingLine) Remove(id Identity) bool {
	idx := l.IndexOf(id)
	if idx < 0 {
		return false
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	return true
}

// PopHead removes and returns the front of the line.
func (l *WaitingLine) PopHead() (Identity, bool) {
	if len(l.entries) == 0 {
		return "", false
	}
	head := l.entries[0]
	l.entries = l.entries[1:]
	return head, true
}

// Preview returns a copy of at most n identities from the front.
func (l *WaitingLine) Preview(n int) []Identity {
	if n > len(l.entries) {
		n = len(l.entries)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Identity, n)
	copy(out, l.entries[:n])
	return out
}

// Entries returns a copy of the whole line.
func (l *WaitingLine) Entries() []Identity {
	return l.Preview(len(l.entries))
}

func (l *WaitingLine) Clear() {
	l.entries = make([]Identity, 0)
}
