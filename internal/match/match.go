// Package match scores scraped broker listings against a decrypted profile.
//
// Scoring is deterministic: a weighted blend of name, location, age, phone
// and relative signals, renormalized over the signals both sides actually
// carry. Ambiguous scores are escalated to a Verifier, which only ever sees
// redacted evidence.
package match

import (
	"math"
	"sort"
	"strings"
	"time"

	"erasure/internal/vault"
)

// Signal names used in Result.Signals and matched-field reporting.
const (
	SignalName      = "name"
	SignalLocation  = "location"
	SignalAge       = "age"
	SignalPhone     = "phone"
	SignalRelatives = "relatives"
)

// Weights control the blend across signals. They need not sum to 1; the
// score renormalizes over applicable signals.
type Weights struct {
	Name      float64
	Location  float64
	Age       float64
	Phone     float64
	Relatives float64
}

// DefaultWeights favors name and location, the signals brokers get right
// most often.
func DefaultWeights() Weights {
	return Weights{Name: 0.35, Location: 0.25, Age: 0.15, Phone: 0.10, Relatives: 0.15}
}

// Candidate is one listing row as scraped from a broker results page.
type Candidate struct {
	Name      string   `json:"name"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Age       *int     `json:"age,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Relatives []string `json:"relatives,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// Result is a deterministic score plus the per-signal breakdown.
type Result struct {
	Confidence float64
	// Signals holds the score of every applicable signal.
	Signals map[string]float64
	// WeakOnly is set when phone and relatives were the only applicable
	// signals. Such matches are never trusted on their own.
	WeakOnly bool
}

// MatchedFields lists the signals that individually cleared 0.5, sorted for
// stable persistence.
func (r Result) MatchedFields() []string {
	var fields []string
	for name, score := range r.Signals {
		if score >= 0.5 {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// Decision classifies a scored candidate against policy thresholds.
type Decision struct {
	Matched     bool
	NeedsVerify bool
	Confidence  float64
}

// Decide applies the two-threshold policy: at or above high is a match, the
// band [low, high) escalates to verification, below low is a non-match.
// Weak-only results are capped at low so a lone phone or relatives hit can
// escalate but never auto-match.
func Decide(r Result, low, high float64) Decision {
	conf := r.Confidence
	if r.WeakOnly && conf > low {
		conf = low
	}
	return Decision{
		Matched:     conf >= high,
		NeedsVerify: conf >= low && conf < high,
		Confidence:  conf,
	}
}

// Scorer computes listing confidence. Now is injectable for age tests.
type Scorer struct {
	Weights Weights
	Now     func() time.Time
	// AgeToleranceYears widens exact-age matching; listings often lag a
	// birthday or two.
	AgeToleranceYears int
}

func NewScorer() *Scorer {
	return &Scorer{Weights: DefaultWeights(), Now: time.Now, AgeToleranceYears: 2}
}

// Score blends the applicable signals. Confidence is the weighted sum divided
// by the weight of applicable signals, so a listing that omits age is not
// penalized for it.
func (s *Scorer) Score(c Candidate, p vault.ProfileData) Result {
	signals := map[string]float64{}
	weighted := 0.0
	applicable := 0.0
	strong := false

	if c.Name != "" && p.FullName != "" {
		score := nameScore(c, p)
		signals[SignalName] = score
		weighted += score * s.Weights.Name
		applicable += s.Weights.Name
		strong = true
	}
	if (c.City != "" || c.State != "") && len(p.Addresses) > 0 {
		score := locationScore(c, p.Addresses)
		signals[SignalLocation] = score
		weighted += score * s.Weights.Location
		applicable += s.Weights.Location
		strong = true
	}
	if c.Age != nil && p.DateOfBirth != "" {
		if profileAge, ok := ageFromDOB(p.DateOfBirth, s.Now()); ok {
			score := s.ageScore(*c.Age, profileAge)
			signals[SignalAge] = score
			weighted += score * s.Weights.Age
			applicable += s.Weights.Age
			strong = true
		}
	}
	if c.Phone != "" && len(p.PhoneNumbers) > 0 {
		score := phoneScore(c.Phone, p.PhoneNumbers)
		signals[SignalPhone] = score
		weighted += score * s.Weights.Phone
		applicable += s.Weights.Phone
	}
	if len(c.Relatives) > 0 && len(p.Relatives) > 0 {
		score := relativesScore(c.Relatives, p.Relatives)
		signals[SignalRelatives] = score
		weighted += score * s.Weights.Relatives
		applicable += s.Weights.Relatives
	}

	if applicable == 0 {
		return Result{Confidence: 0, Signals: signals}
	}
	conf := math.Round(weighted/applicable*10000) / 10000
	return Result{Confidence: conf, Signals: signals, WeakOnly: !strong}
}

// nameScore takes the best match across the full name and all aliases.
func nameScore(c Candidate, p vault.ProfileData) float64 {
	best := 0.0
	for _, known := range append([]string{p.FullName}, p.Aliases...) {
		if known == "" {
			continue
		}
		if ok, score := NamesMatch(c.Name, known); ok && score > best {
			best = score
		}
	}
	return best
}

// locationScore takes the best match across profile addresses. City plus
// state scores 1.0 for the current address and 0.85 for a prior one; a lone
// city or state is weak evidence.
func locationScore(c Candidate, addrs []vault.Address) float64 {
	best := 0.0
	for _, addr := range addrs {
		cityMatch := c.City != "" && addr.City != "" &&
			ratio(strings.ToLower(strings.TrimSpace(c.City)), strings.ToLower(strings.TrimSpace(addr.City))) >= 0.90
		stateMatch := statesEqual(c.State, addr.State)

		score := 0.0
		switch {
		case cityMatch && stateMatch:
			score = 0.85
			if addr.Current {
				score = 1.0
			}
		case cityMatch:
			score = 0.3
		case stateMatch:
			score = 0.15
		}
		if score > best {
			best = score
		}
	}
	return best
}

func (s *Scorer) ageScore(listed, actual int) float64 {
	diff := listed - actual
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return 1.0
	case diff <= s.AgeToleranceYears:
		return 1.0 - float64(diff)*0.1
	default:
		return math.Max(0, 1.0-float64(diff)*0.15)
	}
}

// ageFromDOB computes age in whole years from a YYYY-MM-DD date of birth.
func ageFromDOB(dob string, now time.Time) (int, bool) {
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return 0, false
	}
	age := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// phoneScore compares digit-normalized numbers: exact 1.0, same last seven
// digits 0.7 (area codes move, lines rarely do).
func phoneScore(listed string, known []vault.Phone) float64 {
	ln := normalizePhone(listed)
	if ln == "" {
		return 0
	}
	best := 0.0
	for _, k := range known {
		kn := normalizePhone(k.Number)
		if kn == "" {
			continue
		}
		switch {
		case ln == kn:
			return 1.0
		case len(ln) >= 7 && len(kn) >= 7 && ln[len(ln)-7:] == kn[len(kn)-7:]:
			if best < 0.7 {
				best = 0.7
			}
		}
	}
	return best
}

func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// relativesScore is the fraction of profile relatives that match some listed
// relative.
func relativesScore(listed, known []string) float64 {
	matched := 0
	for _, k := range known {
		for _, l := range listed {
			if ok, _ := NamesMatch(l, k); ok {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(known))
}

func statesEqual(a, b string) bool {
	na := normalizeState(a)
	nb := normalizeState(b)
	return na != "" && na == nb
}

// normalizeState maps full state names to their two-letter codes; codes pass
// through.
func normalizeState(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if code, ok := stateCodes[s]; ok {
		return code
	}
	if len(s) == 2 {
		return s
	}
	return s
}

var stateCodes = map[string]string{
	"alabama": "al", "alaska": "ak", "arizona": "az", "arkansas": "ar",
	"california": "ca", "colorado": "co", "connecticut": "ct", "delaware": "de",
	"florida": "fl", "georgia": "ga", "hawaii": "hi", "idaho": "id",
	"illinois": "il", "indiana": "in", "iowa": "ia", "kansas": "ks",
	"kentucky": "ky", "louisiana": "la", "maine": "me", "maryland": "md",
	"massachusetts": "ma", "michigan": "mi", "minnesota": "mn", "mississippi": "ms",
	"missouri": "mo", "montana": "mt", "nebraska": "ne", "nevada": "nv",
	"new hampshire": "nh", "new jersey": "nj", "new mexico": "nm", "new york": "ny",
	"north carolina": "nc", "north dakota": "nd", "ohio": "oh", "oklahoma": "ok",
	"oregon": "or", "pennsylvania": "pa", "rhode island": "ri", "south carolina": "sc",
	"south dakota": "sd", "tennessee": "tn", "texas": "tx", "utah": "ut",
	"vermont": "vt", "virginia": "va", "washington": "wa", "west virginia": "wv",
	"wisconsin": "wi", "wyoming": "wy", "district of columbia": "dc",
}
