// Package dispatch turns decoded device packets into state and events.
// A single dispatcher owns the aggregate Snapshot and is the only writer;
// everyone else reads value copies tagged with a monotonic revision.
// Events travel over an explicit channel bus; slow subscribers drop
// events rather than block the dispatch path.
package dispatch
