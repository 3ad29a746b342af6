// Package schema is the column registry shared by the logical planner and
// the execution engines.
//
// It owns two things: ordered, typed column lists (Schema) and the single
// rule that decides output names when two frames are combined (Combine).
// The planner predicts join output names with Combine and every engine
// produces them with Combine, so a qualified reference resolved at plan
// time always finds the same physical column at execution time.
package schema
