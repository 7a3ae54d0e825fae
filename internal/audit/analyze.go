package audit

import "time"

// Stats aggregates a loaded event slice for the UI's audit overlay.
// All analysis here is pure: load once with LoadEvents, then slice
// and dice in memory.
type Stats struct {
	Total        int
	ByType       map[EventType]int
	ByRule       map[string]int
	ByConfidence map[string]int
	ByAgentType  map[string]int
	First        time.Time
	Last         time.Time
}

// Aggregate computes summary counts over events.
func Aggregate(events []Event) Stats {
	s := Stats{
		ByType:       make(map[EventType]int),
		ByRule:       make(map[string]int),
		ByConfidence: make(map[string]int),
		ByAgentType:  make(map[string]int),
	}
	for _, ev := range events {
		s.Total++
		s.ByType[ev.Type]++
		if ev.Rule != "" {
			s.ByRule[ev.Rule]++
		}
		if ev.Confidence != "" {
			s.ByConfidence[ev.Confidence]++
		}
		if ev.AgentType != "" {
			s.ByAgentType[ev.AgentType]++
		}
		ts := time.UnixMilli(ev.TsMs)
		if s.First.IsZero() || ts.Before(s.First) {
			s.First = ts
		}
		if ts.After(s.Last) {
			s.Last = ts
		}
	}
	return s
}

// Misdetection is a state change that was reversed almost
// immediately: the detector committed a status, then flipped back to
// the previous one within the window. The rule that produced the
// short-lived status is the likely culprit.
type Misdetection struct {
	PaneID    string
	AgentType string
	Rule      string
	Status    string
	HeldMs    int64
}

// FindMisdetections scans state_changed events per pane for A → B → A
// flips where B was held for less than window.
func FindMisdetections(events []Event, window time.Duration) []Misdetection {
	byPane := make(map[string][]Event)
	for _, ev := range events {
		if ev.Type == EventStateChanged {
			byPane[ev.PaneID] = append(byPane[ev.PaneID], ev)
		}
	}

	var out []Misdetection
	for pane, evs := range byPane {
		for i := 1; i < len(evs); i++ {
			prev, cur := evs[i-1], evs[i]
			if cur.PrevStatus != prev.NewStatus || cur.NewStatus != prev.PrevStatus {
				continue
			}
			held := cur.TsMs - prev.TsMs
			if held >= 0 && held < window.Milliseconds() {
				out = append(out, Misdetection{
					PaneID:    pane,
					AgentType: prev.AgentType,
					Rule:      prev.Rule,
					Status:    prev.NewStatus,
					HeldMs:    held,
				})
			}
		}
	}
	return out
}

// DisagreementSummary counts, per agent type, how often the IPC state
// file and the screen scrape diverged and which capture rules drove
// the divergence.
type DisagreementSummary struct {
	ByAgentType map[string]int
	ByRule      map[string]int
	Total       int
}

// SummarizeDisagreements aggregates source_disagreement events.
func SummarizeDisagreements(events []Event) DisagreementSummary {
	s := DisagreementSummary{
		ByAgentType: make(map[string]int),
		ByRule:      make(map[string]int),
	}
	for _, ev := range events {
		if ev.Type != EventSourceDisagreement {
			continue
		}
		s.Total++
		s.ByAgentType[ev.AgentType]++
		if ev.CaptureReason != "" {
			s.ByRule[ev.CaptureReason]++
		}
	}
	return s
}

// FilterRange returns the events whose timestamp falls within
// [from, to).
func FilterRange(events []Event, from, to time.Time) []Event {
	var out []Event
	for _, ev := range events {
		ts := time.UnixMilli(ev.TsMs)
		if !ts.Before(from) && ts.Before(to) {
			out = append(out, ev)
		}
	}
	return out
}
