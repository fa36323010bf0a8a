package scan

import (
	"math"
	"sort"

	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE TREE
// ══════════════════════════════════════════════════════════════════════════════

// Domain names a group of sub-scores inside Scores.
type Domain string

const (
	DomainSkin       Domain = "skin"
	DomainMakeup     Domain = "makeup"
	DomainEyes       Domain = "eyes"
	DomainLips       Domain = "lips"
	DomainImpression Domain = "impression"
)

// Domains lists every scored domain in display order.
func Domains() []Domain {
	return []Domain{DomainSkin, DomainMakeup, DomainEyes, DomainLips, DomainImpression}
}

// Sub-score keys as produced by the vision service.
const (
	SkinPurity   = "purity"
	SkinShine    = "shine"
	SkinMoisture = "moisture"
	SkinRedness  = "redness"
	SkinPores    = "pores"

	MakeupCoverage   = "coverage"
	MakeupShade      = "shade"
	MakeupDurability = "durability"
	MakeupTexture    = "texture"
	MakeupBlending   = "blending"

	EyesConcealer   = "concealer"
	EyesDarkCircles = "darkCircles"
	EyesSmudging    = "smudging"
	EyesEyelashes   = "eyelashes"

	LipsCondition   = "condition"
	LipsApplication = "application"
	LipsPrecision   = "precision"

	ImpressionNaturalness = "naturalness"
	ImpressionHarmony     = "harmony"
	ImpressionExpression  = "expression"
)

// MinScore and MaxScore bound every score value.
const (
	MinScore = 0
	MaxScore = 100
)

// SubScores maps a sub-score name to its value. A nil map means the domain
// was absent from the record.
type SubScores map[string]float64

// Scores is the nested score tree of one analysis.
type Scores struct {
	Overall    float64   `json:"overall"`
	Skin       SubScores `json:"skin,omitempty"`
	Makeup     SubScores `json:"makeup,omitempty"`
	Eyes       SubScores `json:"eyes,omitempty"`
	Lips       SubScores `json:"lips,omitempty"`
	Impression SubScores `json:"impression,omitempty"`
}

// Domain returns the sub-scores of d, or nil when absent or unknown.
func (s Scores) Domain(d Domain) SubScores {
	switch d {
	case DomainSkin:
		return s.Skin
	case DomainMakeup:
		return s.Makeup
	case DomainEyes:
		return s.Eyes
	case DomainLips:
		return s.Lips
	case DomainImpression:
		return s.Impression
	default:
		return nil
	}
}

// Validate checks the overall score and every present domain.
// Absent domains are allowed; present ones must be non-empty and in range.
func (s Scores) Validate() error {
	if !inRange(s.Overall) {
		return shared.NewDomainError("scan", "Validate", shared.ErrMalformedInput,
			"overall score must be within [0,100]")
	}
	for _, d := range Domains() {
		sub := s.Domain(d)
		if sub == nil {
			continue
		}
		if err := sub.validate(d); err != nil {
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLL-UPS
// ══════════════════════════════════════════════════════════════════════════════

// RollUp returns the rounded arithmetic mean of sub. An absent (nil) domain
// rolls up to 0 so partial and legacy records still render; an empty or
// out-of-range map is malformed.
func RollUp(sub SubScores) (int, error) {
	if sub == nil {
		return 0, nil
	}
	if err := sub.validate(""); err != nil {
		return 0, err
	}

	// Sum in key order so the result never depends on map iteration.
	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	for _, k := range keys {
		sum += sub[k]
	}
	return int(math.Round(sum / float64(len(sub)))), nil
}

// RollUp returns the roll-up of one domain of s.
func (s Scores) RollUp(d Domain) (int, error) {
	return RollUp(s.Domain(d))
}

// RollUps holds the derived display numbers of one record.
type RollUps struct {
	Overall    int `json:"overall"`
	Skin       int `json:"skin"`
	Makeup     int `json:"makeup"`
	Eyes       int `json:"eyes"`
	Lips       int `json:"lips"`
	Impression int `json:"impression"`
}

// RollUps derives every domain roll-up of s.
func (s Scores) RollUps() (RollUps, error) {
	var r RollUps
	var err error

	if !inRange(s.Overall) {
		return RollUps{}, shared.NewDomainError("scan", "RollUps", shared.ErrMalformedInput,
			"overall score must be within [0,100]")
	}
	r.Overall = int(math.Round(s.Overall))

	targets := map[Domain]*int{
		DomainSkin:       &r.Skin,
		DomainMakeup:     &r.Makeup,
		DomainEyes:       &r.Eyes,
		DomainLips:       &r.Lips,
		DomainImpression: &r.Impression,
	}
	for _, d := range Domains() {
		if *targets[d], err = s.RollUp(d); err != nil {
			return RollUps{}, err
		}
	}
	return r, nil
}

func (sub SubScores) validate(d Domain) error {
	if len(sub) == 0 {
		return shared.NewDomainError("scan", "RollUp", shared.ErrMalformedInput,
			"domain "+string(d)+" has no sub-scores")
	}
	for name, v := range sub {
		if !inRange(v) {
			return shared.NewDomainError("scan", "RollUp", shared.ErrMalformedInput,
				"sub-score "+string(d)+"."+name+" must be within [0,100]")
		}
	}
	return nil
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && v >= MinScore && v <= MaxScore
}
