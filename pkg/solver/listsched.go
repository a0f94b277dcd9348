// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
package solver

import (
	"context"
	"sort"

	"github.com/slothy-opt/slothy/pkg/dfg"
	"github.com/slothy-opt/slothy/pkg/model"
)

// scheduler searches for a (position, cycle, unit) assignment satisfying
// constraint families 1-3 and 7 of spec §4.2. It backtracks over the choice
// of which ready node issues next whenever a choice cannot be extended to a
// full schedule within the stalls budget.
type scheduler struct {
	p           *model.Problem
	ctx         context.Context
	maxAttempts int

	attempts int
	timedOut bool

	// preds/succs restrict the graph's edges to real-node pairs: the
	// virtual source/sink never occupy a cycle or position.
	preds map[dfg.NodeID][]dfg.NodeID
	succs map[dfg.NodeID][]dfg.NodeID

	// unitBusy[unit][cycle] counts nodes already placed on unit at cycle.
	unitBusy map[string]map[int]uint
	// widthBusy[cycle] counts nodes already placed at cycle, architecture-wide.
	widthBusy map[int]uint

	position map[dfg.NodeID]int
	cycle    map[dfg.NodeID]int
	unit     map[dfg.NodeID]string
}

func (s *scheduler) run() (cycle map[dfg.NodeID]int, unit map[dfg.NodeID]string, position map[dfg.NodeID]int, ok bool, err error) {
	nodes := s.p.Graph.RealNodes()
	s.preds = make(map[dfg.NodeID][]dfg.NodeID, len(nodes))
	s.succs = make(map[dfg.NodeID][]dfg.NodeID, len(nodes))

	real := make(map[dfg.NodeID]bool, len(nodes))
	for _, n := range nodes {
		real[n.ID] = true
	}

	for _, e := range s.p.Graph.Edges {
		if real[e.Producer] && real[e.Consumer] {
			s.preds[e.Consumer] = append(s.preds[e.Consumer], e.Producer)
			s.succs[e.Producer] = append(s.succs[e.Producer], e.Consumer)
		}
	}

	s.unitBusy = make(map[string]map[int]uint)
	s.widthBusy = make(map[int]uint)
	s.position = make(map[dfg.NodeID]int, len(nodes))
	s.cycle = make(map[dfg.NodeID]int, len(nodes))
	s.unit = make(map[dfg.NodeID]string, len(nodes))

	indegree := make(map[dfg.NodeID]int, len(nodes))

	var ready []dfg.NodeID

	for _, n := range nodes {
		indegree[n.ID] = len(s.preds[n.ID])

		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	placed := make(map[dfg.NodeID]bool, len(nodes))

	ok = s.search(ready, indegree, placed, 0)

	return s.cycle, s.unit, s.position, ok, nil
}

// search tries, in deterministic order, each currently-ready node as the
// next to issue, backtracking on failure.
func (s *scheduler) search(ready []dfg.NodeID, indegree map[dfg.NodeID]int, placed map[dfg.NodeID]bool, nextPosition int) bool {
	select {
	case <-s.ctx.Done():
		s.timedOut = true
		return false
	default:
	}

	total := len(s.p.Graph.RealNodes())
	if len(placed) == total {
		return true
	}

	if len(ready) == 0 {
		// A DAG always has a ready node until every node is placed; this
		// only triggers for the zero-instruction body.
		return total == 0
	}

	candidates := append([]dfg.NodeID(nil), ready...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	for _, n := range candidates {
		if s.attempts >= s.maxAttempts {
			return false
		}

		s.attempts++

		nodeCycle, chosenUnit, ok := s.place(n)
		if !ok {
			continue
		}

		s.position[n] = nextPosition
		s.cycle[n] = nodeCycle
		s.unit[n] = chosenUnit
		placed[n] = true

		nextReady := removeNode(ready, n)

		for _, succ := range s.succs[n] {
			indegree[succ]--
			if indegree[succ] == 0 {
				nextReady = append(nextReady, succ)
			}
		}

		if s.search(nextReady, indegree, placed, nextPosition+1) {
			return true
		}

		// backtrack
		for _, succ := range s.succs[n] {
			indegree[succ]++
		}

		delete(placed, n)
		delete(s.position, n)
		s.unplace(n, nodeCycle, chosenUnit)
	}

	return false
}

// place computes the earliest cycle and functional unit at which n can
// legally issue given everything already scheduled, honouring latency
// (constraint family 2), per-unit capacity and architecture-wide issue
// width (constraint family 3), and the stalls budget (constraint family 7).
// It reserves the slot before returning so later sibling candidates in the
// same search level see accurate occupancy; callers that reject the result
// must call unplace.
func (s *scheduler) place(n dfg.NodeID) (cycle int, unit string, ok bool) {
	node := s.p.Graph.Node(n)

	earliest := 0

	for _, pred := range s.preds[n] {
		latency := s.latency(pred, n)
		if c := s.cycle[pred] + latency; c > earliest {
			earliest = c
		}
	}

	units := s.p.Uarch.Units(node.Shape.Mnemonic)
	if len(units) == 0 {
		units = []string{""}
	}

	maxCycle := s.p.MaxCycle()

	for c := earliest; c <= maxCycle; c++ {
		if s.widthBusy[c] >= s.p.Uarch.IssueWidth() {
			continue
		}

		for _, u := range units {
			cap := s.p.Uarch.UnitCapacity(u)
			if s.unitBusy[u] == nil {
				s.unitBusy[u] = make(map[int]uint)
			}

			if s.unitBusy[u][c] < cap {
				s.unitBusy[u][c]++
				s.widthBusy[c]++

				return c, u, true
			}
		}
	}

	return 0, "", false
}

func (s *scheduler) unplace(n dfg.NodeID, cycle int, unit string) {
	s.unitBusy[unit][cycle]--
	s.widthBusy[cycle]--
	delete(s.cycle, n)
	delete(s.unit, n)
}

func (s *scheduler) latency(producer, consumer dfg.NodeID) int {
	pMnemonic := s.p.Graph.Node(producer).Shape.Mnemonic
	cMnemonic := s.p.Graph.Node(consumer).Shape.Mnemonic

	if l, ok := s.p.Uarch.Forwarding(pMnemonic, cMnemonic); ok {
		return int(l)
	}

	return int(s.p.Uarch.Latency(pMnemonic))
}

func removeNode(ids []dfg.NodeID, target dfg.NodeID) []dfg.NodeID {
	out := make([]dfg.NodeID, 0, len(ids))

	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}

	return out
}
