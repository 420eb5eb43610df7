// Package symtab interns strings into stable, process-local small integer
// ids shared across every plugin hosted by the kernel.
package symtab

import "sync"

// ID is an interned symbol. Zero means "absent" — no string has ever been
// interned to 0.
type ID uint32

// Table is a process-lifetime string interner. The zero value is not usable;
// construct one with New.
type Table struct {
	mu       sync.RWMutex
	byString map[string]ID
	byID     []string // byID[0] is unused (reserved for the absent symbol)
}

// New creates an empty symbol table.
func New() *Table {
	return &Table{
		byString: make(map[string]ID, 64),
		byID:     make([]string, 1), // index 0 reserved
	}
}

// Intern returns the stable id for s, interning it if this is the first
// occurrence. Intern is idempotent: two calls with equal strings always
// return equal ids.
func (t *Table) Intern(s string) ID {
	t.mu.RLock()
	if id, ok := t.byString[s]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check: another writer may have interned s while we waited for the
	// exclusive lock.
	if id, ok := t.byString[s]; ok {
		return id
	}

	id := ID(len(t.byID))
	t.byID = append(t.byID, s)
	t.byString[s] = id
	return id
}

// Lookup returns the string for id, or ("", false) if id is absent or was
// never issued by this table.
func (t *Table) Lookup(id ID) (string, bool) {
	if id == 0 {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

// LookupIfExists returns the id already assigned to s, or 0 if s has never
// been interned. Unlike Intern, this never allocates a new id.
func (t *Table) LookupIfExists(s string) ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byString[s]
}

// MustLookup is Lookup without the ok return, for call sites that already
// hold an id known to be valid (e.g. one just returned by Intern).
func (t *Table) MustLookup(id ID) string {
	s, _ := t.Lookup(id)
	return s
}
