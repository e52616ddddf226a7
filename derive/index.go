package derive

import "github.com/c360studio/artificer/artifact"

// IndexedCollection is an ordered set of derived artifacts with a lookup
// index, so a later declaration can be linked to an earlier one in a single
// pass over the document.
type IndexedCollection struct {
	items []*artifact.Artifact
	index map[string]*artifact.Artifact
}

// NewIndexedCollection creates an empty collection.
func NewIndexedCollection() *IndexedCollection {
	return &IndexedCollection{index: make(map[string]*artifact.Artifact)}
}

// Add assigns a UUID if needed, indexes a under key and appends it. An
// empty key appends without indexing. A repeated key points the index at
// the newest artifact.
func (c *IndexedCollection) Add(key string, a *artifact.Artifact) *artifact.Artifact {
	a.EnsureUUID()
	if key != "" {
		c.index[key] = a
	}
	c.items = append(c.items, a)
	return a
}

// Lookup returns the artifact indexed under key.
func (c *IndexedCollection) Lookup(key string) (*artifact.Artifact, bool) {
	a, ok := c.index[key]
	return a, ok
}

// Artifacts returns the artifacts in the order they were added.
func (c *IndexedCollection) Artifacts() []*artifact.Artifact {
	return c.items
}

// Len returns the number of artifacts.
func (c *IndexedCollection) Len() int {
	return len(c.items)
}

// indexKey namespaces a declaration name by its kind, since a filter and a
// servlet, or a message and a port type, may share a name.
func indexKey(kind, name string) string {
	return kind + ":" + name
}
