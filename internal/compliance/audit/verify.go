package audit

import "fmt"

// Verification is the result of checking a chain
type Verification struct {
	Valid         bool   `json:"valid"`
	BrokenAtIndex *int   `json:"broken_at_index,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Checked       int    `json:"checked"`
}

// VerifyChain checks a complete chain starting at the genesis entry
func VerifyChain(entries []Entry) Verification {
	return VerifyChainFrom(GenesisHash, entries)
}

// VerifyChainFrom checks entries whose first element must link to anchor.
// A genesis anchor also pins the first sequence to 0.
func VerifyChainFrom(anchor string, entries []Entry) Verification {
	v := newVerifier(anchor, 0)
	for i := range entries {
		if !v.step(&entries[i]) {
			break
		}
	}
	return v.result()
}

// verifier walks a chain incrementally so large ledgers can be checked page by page
type verifier struct {
	prev     string
	index    int
	nextSeq  int64
	seqKnown bool
	broken   *int
	reason   string
}

func newVerifier(anchor string, startIndex int) *verifier {
	return &verifier{prev: anchor, index: startIndex, seqKnown: anchor == GenesisHash}
}

func (v *verifier) fail(reason string) bool {
	idx := v.index
	v.broken = &idx
	v.reason = reason
	return false
}

func (v *verifier) step(e *Entry) bool {
	if v.broken != nil {
		return false
	}
	if e.PreviousHash != v.prev {
		return v.fail(fmt.Sprintf("entry %d does not link to its predecessor", v.index))
	}
	if v.seqKnown && e.Sequence != v.nextSeq {
		return v.fail(fmt.Sprintf("entry %d has sequence %d, expected %d", v.index, e.Sequence, v.nextSeq))
	}
	hash, err := e.Recompute()
	if err != nil {
		return v.fail(fmt.Sprintf("entry %d could not be hashed: %v", v.index, err))
	}
	if hash != e.Hash {
		return v.fail(fmt.Sprintf("entry %d hash mismatch", v.index))
	}
	v.prev = e.Hash
	v.nextSeq, v.seqKnown = e.Sequence+1, true
	v.index++
	return true
}

func (v *verifier) result() Verification {
	return Verification{
		Valid:         v.broken == nil,
		BrokenAtIndex: v.broken,
		Reason:        v.reason,
		Checked:       v.index,
	}
}
