// Package relir provides the logical relational IR that users build once and
// execute against any backend.
//
// ARCHITECTURE:
//
//	[user expression] → [relir] → [lower] → [physical plan] → [engine]
//
// A Relation is an immutable node: a registered Table, or a composition
// (Join, Project, Filter, Mutate, Rename, View) of other relations. Every
// constructor validates eagerly and returns a new node; nothing is mutated
// after construction, so independent trees may be built concurrently from
// the same base relation without locking.
//
// SEALED INTERFACES:
//
// Relation, Expr and Selection are sealed using the marker method pattern.
// Only types in this package implement them, which keeps type switches in
// the lowering pass exhaustive.
//
// PROVENANCE:
//
// Every Column carries the list of (node, name) pairs it passed through
// unchanged. A reference qualified by a relation, e.g. rhs.Col("value"),
// resolves by searching that list, so references to any ancestor relation
// keep working through arbitrarily deep join chains. Provenance is copied
// and extended on each composition, never shared mutably.
//
// JOIN PREDICATES:
//
// Only equality is a valid join predicate. Conjunctions are flattened; any
// other comparison, anywhere in the predicate, is an InvalidJoinPredicate
// error. Operands are normalized so that A.k == B.k and B.k == A.k yield
// the same JoinKey. Operands may be key expressions such as
// length(left.key) == length(right.key) provided each side references
// exactly one join input.
//
// DUPLICATE NON-KEY COLUMNS:
//
// Columns that share a name across join sides without being a merged key
// are kept and the right one is suffixed (default "_right"). A bare name
// matching both is an AmbiguousColumnReference; qualified references always
// resolve to the right physical column. If suffixing itself collides the
// join is rejected with UndefinedDuplicateColumn.
package relir
