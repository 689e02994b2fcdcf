// Package depcache derives the dependency mapping exposed through the shared
// configuration artifact. The mapping is a view over the cache store's
// current contents, computed lazily at render time: one entry per cached
// translation unit, keyed by root-relative path, valued by the unit's direct
// dependency list exactly as the compiler declared it. Serialization is JSON
// with lexicographic key ordering. Augment splices the rendering into the
// artifact text by replacing the balanced object value of its depCache key.
package depcache
