// Data model for moderation policy documents: runs, checks, rules, rule sets, actions and the author/item filter criteria that gate them.
//
// Raw documents are decoded (JSON or YAML) in to generic trees, hydrated in to the typed Document by the hydrate package, and finally resolved in to an execution graph by the graph package.
//
// This package also holds the shared error kinds, positional error context, and the canonical serialization used for structural equality and premise hashing.
package policy
