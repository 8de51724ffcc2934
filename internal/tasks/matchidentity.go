package tasks

import (
	"context"

	"erasure/internal/match"
	"erasure/internal/vault"
)

// ProfileSource decrypts a profile for the duration of one matching pass.
type ProfileSource interface {
	LoadProfile(ctx context.Context, profileID string) (vault.ProfileData, error)
}

// ListingSink records confirmed matches as broker listings.
type ListingSink interface {
	RecordMatch(ctx context.Context, brokerID, profileID string, c match.Candidate, confidence float64, matchedFields []string) (listingID string, err error)
}

// MatchIdentity scores scraped candidates against the subject's profile.
// Scores in the ambiguous band go to the verifier with redacted evidence;
// confirmed matches are persisted as listings.
type MatchIdentity struct {
	Profiles ProfileSource
	Listings ListingSink
	Scorer   *match.Scorer
	Verifier match.Verifier
	Low      float64
	High     float64
	// Threshold is the policy default for the auto-match bound. A task may
	// tighten or loosen it with a "threshold" input; zero falls back to High.
	Threshold float64
}

func (m *MatchIdentity) autoMatchBound(input map[string]any) float64 {
	bound := m.High
	if m.Threshold > 0 {
		bound = m.Threshold
	}
	if t, ok := floatInput(input, "threshold"); ok && t > 0 && t <= 1 {
		bound = t
	}
	if bound < m.Low {
		bound = m.Low
	}
	return bound
}

func (m *MatchIdentity) Execute(ctx context.Context, inv Invocation) (Result, error) {
	profileID, err := stringInput(inv.Input, "profile_id")
	if err != nil {
		if profileID = optionalString(inv.Params, "profile_id"); profileID == "" {
			return Result{}, err
		}
	}
	brokerID := optionalString(inv.Input, "broker_id")
	if brokerID == "" {
		brokerID = optionalString(inv.Params, "broker_id")
	}

	rawCandidates, ok := inv.Input["candidates"].([]any)
	if !ok {
		return Result{}, Permanent("input_missing", "candidates must be a list")
	}

	profile, err := m.Profiles.LoadProfile(ctx, profileID)
	if err != nil {
		return Result{}, Permanent("profile_unavailable", "loading profile %s: %v", profileID, err)
	}

	bound := m.autoMatchBound(inv.Input)
	var matches []any
	var listingIDs []any
	best := 0.0
	for _, raw := range rawCandidates {
		cm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		candidate := match.CandidateFromMap(cm)
		result := m.Scorer.Score(candidate, profile)
		decision := match.Decide(result, m.Low, bound)

		if decision.NeedsVerify && m.Verifier != nil {
			judgement, err := m.Verifier.Verify(ctx, match.BuildEvidence(candidate, profile))
			if err != nil {
				return Result{}, Transient("verifier", "verifying candidate: %v", err)
			}
			if judgement.Match {
				decision.Matched = true
				if judgement.Confidence > decision.Confidence {
					decision.Confidence = judgement.Confidence
				}
			}
		}
		if !decision.Matched {
			continue
		}

		if decision.Confidence > best {
			best = decision.Confidence
		}
		entry := map[string]any{
			"name":           candidate.Name,
			"url":            candidate.URL,
			"confidence":     decision.Confidence,
			"matched_fields": result.MatchedFields(),
		}
		if m.Listings != nil && brokerID != "" {
			listingID, err := m.Listings.RecordMatch(ctx, brokerID, profileID, candidate, decision.Confidence, result.MatchedFields())
			if err != nil {
				return Result{}, Transient("listing_store", "recording match: %v", err)
			}
			entry["listing_id"] = listingID
			listingIDs = append(listingIDs, listingID)
		}
		matches = append(matches, entry)
	}

	return Result{Output: map[string]any{
		"matches":         matches,
		"listing_ids":     listingIDs,
		"match_count":     len(matches),
		"best_confidence": best,
	}}, nil
}
