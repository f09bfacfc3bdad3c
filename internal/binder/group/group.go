// Package group builds, for every pid seen in a transaction snapshot, the set
// of pids it was ever paired with.
package group

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
)

// Group is the neighbor set of a single pid. Owner is always the first
// member; the rest follow in the order their pairings were observed.
type Group struct {
	Owner   int   `json:"owner"`
	Members []int `json:"members"`

	seen map[int]struct{}
}

func newGroup(owner int) *Group {
	g := &Group{
		Owner: owner,
		seen:  make(map[int]struct{}),
	}
	g.add(owner)
	return g
}

func (g *Group) add(pid int) {
	if _, ok := g.seen[pid]; ok {
		return
	}
	g.seen[pid] = struct{}{}
	g.Members = append(g.Members, pid)
}

// Contains reports whether pid is a member of g.
func (g *Group) Contains(pid int) bool {
	_, ok := g.seen[pid]
	return ok
}

// Len returns the number of distinct members.
func (g *Group) Len() int { return len(g.Members) }

// SameSet reports whether g and other hold the same members regardless of order.
func (g *Group) SameSet(other *Group) bool {
	if g.Len() != other.Len() {
		return false
	}
	for _, pid := range g.Members {
		if !other.Contains(pid) {
			return false
		}
	}
	return true
}

// Table maps each pid to its neighbor group.
type Table map[int]*Group

// Build groups pairs by pid. The partner of each occurrence is chosen by the
// role it played in its record, so a pid that only ever appears as a
// destination still gets every source it was called from.
func Build(pairs reader.PairList) Table {
	table := make(Table)
	for _, rec := range pairs {
		if rec.From <= 0 || rec.To <= 0 {
			continue
		}
		table.link(rec.From, rec.To)
		table.link(rec.To, rec.From)
	}
	return table
}

func (t Table) link(pid, partner int) {
	g, ok := t[pid]
	if !ok {
		g = newGroup(pid)
		t[pid] = g
	}
	g.add(partner)
}

// Neighbors returns the group for pid, or nil when pid never appeared.
func (t Table) Neighbors(pid int) *Group {
	return t[pid]
}

// PIDs returns every pid in the table in ascending order.
func (t Table) PIDs() []int {
	pids := make([]int, 0, len(t))
	for pid := range t {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

// Distinct returns the groups with identical member sets collapsed into one,
// ordered by owner pid. Two pids that only ever talked to each other share a
// single entry.
func (t Table) Distinct() []*Group {
	var out []*Group
	for _, pid := range t.PIDs() {
		g := t[pid]
		dup := false
		for _, existing := range out {
			if existing.SameSet(g) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, g)
		}
	}
	return out
}
