package audit

import (
	"fmt"
	"sort"
	"time"
)

// BreakType categorizes a detected chain break
type BreakType string

const (
	BreakHashMismatch   BreakType = "hash_mismatch"
	BreakLinkMismatch   BreakType = "link_mismatch"
	BreakSequenceGap    BreakType = "sequence_gap"
	BreakUnsealedRecord BreakType = "unsealed_record"
)

// ChainBreak describes one point where the hash chain fails to verify
type ChainBreak struct {
	EventID      string    `json:"event_id"`
	Sequence     int64     `json:"sequence"`
	BreakType    BreakType `json:"break_type"`
	ExpectedHash string    `json:"expected_hash,omitempty"`
	ActualHash   string    `json:"actual_hash,omitempty"`
	Description  string    `json:"description"`
}

// VerificationResult is the outcome of a full-chain recomputation
type VerificationResult struct {
	Valid          bool          `json:"valid"`
	EventsVerified int           `json:"events_verified"`
	Breaks         []ChainBreak  `json:"breaks,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// VerifyChain recomputes every hash in sequence order and compares.
// An empty chain is valid. Any break is an integrity violation for the
// caller to surface; the chain is never repaired here.
func VerifyChain(events []*Event) *VerificationResult {
	start := time.Now()

	result := &VerificationResult{Valid: true}
	if len(events) == 0 {
		result.Elapsed = time.Since(start)
		return result
	}

	ordered := make([]*Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	var previousHash string
	for i, event := range ordered {
		result.EventsVerified++

		if event.Hash == "" {
			result.Valid = false
			result.Breaks = append(result.Breaks, ChainBreak{
				EventID:     event.ID.String(),
				Sequence:    event.Sequence,
				BreakType:   BreakUnsealedRecord,
				Description: "record has no hash",
			})
			continue
		}

		if i > 0 {
			expectedSeq := ordered[i-1].Sequence + 1
			if event.Sequence != expectedSeq {
				result.Valid = false
				result.Breaks = append(result.Breaks, ChainBreak{
					EventID:     event.ID.String(),
					Sequence:    event.Sequence,
					BreakType:   BreakSequenceGap,
					Description: fmt.Sprintf("expected sequence %d, got %d", expectedSeq, event.Sequence),
				})
			}
		}

		if event.PreviousHash != previousHash {
			result.Valid = false
			result.Breaks = append(result.Breaks, ChainBreak{
				EventID:      event.ID.String(),
				Sequence:     event.Sequence,
				BreakType:    BreakLinkMismatch,
				ExpectedHash: previousHash,
				ActualHash:   event.PreviousHash,
				Description:  "stored previous_hash does not match prior record",
			})
		}

		recomputed, err := event.Recompute(event.PreviousHash)
		if err != nil || recomputed != event.Hash {
			result.Valid = false
			result.Breaks = append(result.Breaks, ChainBreak{
				EventID:      event.ID.String(),
				Sequence:     event.Sequence,
				BreakType:    BreakHashMismatch,
				ExpectedHash: recomputed,
				ActualHash:   event.Hash,
				Description:  "record fields do not reproduce stored hash",
			})
		}

		previousHash = event.Hash
	}

	result.Elapsed = time.Since(start)
	return result
}
