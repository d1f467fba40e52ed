// Package loopdetect fingerprints recent actions and page states to detect
// stagnation and repetition, surfacing a free-text nudge the Message Manager
// injects into the next prompt.
package loopdetect

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/vektra-dev/browseragent/internal/agentcore"
)

const maxRetainedFingerprints = 5

const (
	thresholdStrong = 12
	thresholdMid    = 8
	thresholdSoft   = 5
	stagnationLimit = 5

	// oscillationDistinctLimit flags bouncing between a small number of page
	// states (e.g. A, B, A, B, A) that RecordPageState's consecutive-equality
	// check alone can't see, since no two adjacent observations match.
	oscillationDistinctLimit = 2
)

// Fingerprint summarises a page state for equality comparison.
type Fingerprint struct {
	URL          string
	ElementCount int
	TextHash     string
}

// Equal reports whether two fingerprints describe the same page state.
// Reflexive and symmetric over (URL, ElementCount, TextHash).
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.URL == other.URL && f.ElementCount == other.ElementCount && f.TextHash == other.TextHash
}

// Detector is pure in-memory accounting; it owns no browser or network
// state and is safe to use from a single Runner only.
type Detector struct {
	window int
	logger zerolog.Logger

	ring []string // FIFO ring of action hashes, capped at window

	maxRepetitionCount int
	mostRepeatedHash   string

	fingerprints             []Fingerprint // last <=5, most recent last
	consecutiveStagnantPages int
	distinctRecentPages      int
}

// New creates a Detector with the given rolling window size.
func New(window int, logger zerolog.Logger) *Detector {
	if window <= 0 {
		window = 20
	}
	return &Detector{window: window, logger: logger}
}

// RecordAction normalizes and hashes an issued action, inserts it into the
// bounded ring, and recomputes repetition counts. Returns the hash.
//
// The detector records the issued action set, not the executed subset: the
// LLM's intent drives repetition judgement even when the executor
// short-circuits the remainder of a step's action list.
func (d *Detector) RecordAction(action agentcore.AgentAction) string {
	key := normalizeAction(action.Name(), action.Params())
	hash := djb2(key)

	d.ring = append(d.ring, hash)
	if len(d.ring) > d.window {
		d.ring = d.ring[len(d.ring)-d.window:]
	}

	counts := make(map[string]int, len(d.ring))
	for _, h := range d.ring {
		counts[h]++
	}
	var maxHash string
	maxCount := 0
	for h, c := range counts {
		if c > maxCount {
			maxCount = c
			maxHash = h
		}
	}
	d.maxRepetitionCount = maxCount
	d.mostRepeatedHash = maxHash

	d.logger.Debug().
		Str("action", key).
		Str("hash", hash).
		Int("max_repetition", maxCount).
		Msg("loop detector recorded action")

	return hash
}

// RecordPageState fingerprints a page observation: (url, elementCount,
// textHash(domText)). If it equals the most recent prior fingerprint,
// consecutiveStagnantPages increments; otherwise it resets to 0. Retains
// the last 5 fingerprints.
func (d *Detector) RecordPageState(url, domText string, elementCount int) Fingerprint {
	fp := Fingerprint{
		URL:          url,
		ElementCount: elementCount,
		TextHash:     djb2(domText),
	}

	if len(d.fingerprints) > 0 {
		last := d.fingerprints[len(d.fingerprints)-1]
		if last.Equal(fp) {
			d.consecutiveStagnantPages++
		} else {
			d.consecutiveStagnantPages = 0
		}
	} else {
		d.consecutiveStagnantPages = 0
	}

	d.fingerprints = append(d.fingerprints, fp)
	if len(d.fingerprints) > maxRetainedFingerprints {
		d.fingerprints = d.fingerprints[len(d.fingerprints)-maxRetainedFingerprints:]
	}

	// distinctFingerprints is a derived view, not persisted detector state:
	// recomputed from the retained window each time and fed into
	// GetNudgeMessage's oscillation check below.
	d.distinctRecentPages = d.distinctFingerprints()

	return fp
}

func (d *Detector) distinctFingerprints() int {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, fp := range d.fingerprints {
		set.Add(fmt.Sprintf("%s|%d|%s", fp.URL, fp.ElementCount, fp.TextHash))
	}
	return set.Cardinality()
}

// GetNudgeMessage returns a free-text advisory for the next prompt, or nil
// if none of the repetition, stagnation or oscillation checks has crossed
// its threshold.
func (d *Detector) GetNudgeMessage() *string {
	var parts []string

	switch {
	case d.maxRepetitionCount >= thresholdStrong:
		parts = append(parts, fmt.Sprintf(
			"You have repeated a similar action %d times (window size %d); if not making progress, a different approach might get you there faster.",
			d.maxRepetitionCount, len(d.ring)))
	case d.maxRepetitionCount >= thresholdMid:
		parts = append(parts, fmt.Sprintf(
			"You have repeated a similar action %d times (window size %d); are you still making progress? if not, try a different approach.",
			d.maxRepetitionCount, len(d.ring)))
	case d.maxRepetitionCount >= thresholdSoft:
		parts = append(parts, fmt.Sprintf(
			"You have repeated a similar action %d times (window size %d); if intentional and making progress, carry on. Otherwise, reconsider.",
			d.maxRepetitionCount, len(d.ring)))
	}

	if d.consecutiveStagnantPages >= stagnationLimit {
		parts = append(parts, fmt.Sprintf(
			"page content has not changed across %d consecutive actions.", d.consecutiveStagnantPages))
	}

	// distinctRecentPages == 1 is a single repeated state, already covered by
	// the consecutive-stagnation check above; oscillation is specifically
	// bouncing between 2 or more states without any two adjacent ones matching.
	if len(d.fingerprints) >= maxRetainedFingerprints && d.distinctRecentPages >= 2 && d.distinctRecentPages <= oscillationDistinctLimit {
		parts = append(parts, fmt.Sprintf(
			"you appear to be bouncing between only %d distinct page states over the last %d observations; consider a different approach.",
			d.distinctRecentPages, len(d.fingerprints)))
	}

	if len(parts) == 0 {
		return nil
	}
	msg := strings.Join(parts, "\n\n")
	return &msg
}

// MaxRepetitionCount exposes the current repetition count (test/inspection
// hook; not part of the nudge contract).
func (d *Detector) MaxRepetitionCount() int { return d.maxRepetitionCount }

// ConsecutiveStagnantPages exposes the current stagnation streak.
func (d *Detector) ConsecutiveStagnantPages() int { return d.consecutiveStagnantPages }

// DistinctRecentPageCount exposes the number of distinct page fingerprints
// in the retained window (test/inspection hook).
func (d *Detector) DistinctRecentPageCount() int { return d.distinctRecentPages }
