// Package pending tracks writes sent to devices that have not been confirmed yet.
package pending

import (
	"fmt"
	"sort"
	"sync"
)

// Key names the kind of write an entry belongs to.
type Key string

const (
	KeyConfiguration Key = "configuration"
	KeyAssociation   Key = "association"
	KeyWakeUp        Key = "wakeup"
)

// Tuple identifies one pending write. For associations Parameter is the group
// and Argument the member node; configuration and wake-up use Argument 0.
type Tuple struct {
	Key       Key
	Node      uint8
	Parameter int
	Argument  int
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", t.Key, t.Node, t.Parameter, t.Argument)
}

// Entry is a tuple with its proposed value.
type Entry struct {
	Tuple
	Value int32
}

// Table is an in-memory map of unconfirmed writes. At most one entry exists
// per tuple. Entries never expire; they live until Remove or process exit.
type Table struct {
	mu      sync.Mutex
	entries map[Tuple]int32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Tuple]int32)}
}

// Add records value for the tuple, replacing any earlier value.
func (t *Table) Add(key Key, node uint8, parameter, argument int, value int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[Tuple{key, node, parameter, argument}] = value
}

// Get returns the pending value for the tuple.
func (t *Table) Get(key Key, node uint8, parameter, argument int) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[Tuple{key, node, parameter, argument}]
	return v, ok
}

// Remove deletes the tuple. Removing an absent tuple is a no-op; it reports
// whether an entry was present.
func (t *Table) Remove(key Key, node uint8, parameter, argument int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp := Tuple{key, node, parameter, argument}
	if _, ok := t.entries[tp]; !ok {
		return false
	}
	delete(t.entries, tp)
	return true
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a sorted snapshot of entries matching key and node.
// An empty key matches every key; node 0 matches every node.
func (t *Table) Entries(key Key, node uint8) []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for tp, v := range t.entries {
		if key != "" && tp.Key != key {
			continue
		}
		if node != 0 && tp.Node != node {
			continue
		}
		out = append(out, Entry{Tuple: tp, Value: v})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Tuple, out[j].Tuple
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Parameter != b.Parameter {
			return a.Parameter < b.Parameter
		}
		return a.Argument < b.Argument
	})
	return out
}
