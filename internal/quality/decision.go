package quality

// DecisionKind enumerates the possible outcomes of a decision. No other
// outcomes exist.
type DecisionKind string

const (
	DecisionReject      DecisionKind = "reject"
	DecisionAcceptNew   DecisionKind = "accept-new"
	DecisionUpgrade     DecisionKind = "upgrade"
	DecisionKeepCurrent DecisionKind = "keep-current"
)

// Decision reasons.
const (
	ReasonUnknownQuality   = "unknown-quality"
	ReasonQualityNotWanted = "quality-not-wanted"
	ReasonCutoffMet        = "cutoff-met"
	ReasonUpgradesDisabled = "upgrades-disabled"
	ReasonNoImprovement    = "no-improvement"
	ReasonLowerQuality     = "lower-quality"
)

// CurrentFile describes the file currently held for a library item.
// QualityID 0 means the file's quality is unknown, which is a distinct state
// from any ranked level.
type CurrentFile struct {
	FileID    int64 `json:"fileId"`
	QualityID int   `json:"qualityId"`
}

// Decision is the outcome of evaluating a candidate against a profile and
// the current file state.
type Decision struct {
	Kind               DecisionKind `json:"kind"`
	Reason             string       `json:"reason,omitempty"`
	CandidateQualityID int          `json:"candidateQualityId,omitempty"`
	SupersedesFileID   int64        `json:"supersedesFileId,omitempty"`
}

// Accepted reports whether the decision results in a grab.
func (d Decision) Accepted() bool {
	return d.Kind == DecisionAcceptNew || d.Kind == DecisionUpgrade
}

// Decide evaluates a candidate quality against a profile and the current
// file state (nil when the item has no file). It is a pure function: no I/O,
// no mutable state, deterministic for a given set of inputs.
//
// It returns an error only for invalid profiles; every valid input produces
// exactly one Decision.
func Decide(p *Profile, candidateQualityID int, current *CurrentFile) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	// Unknown quality cannot be ranked and is never acceptable.
	candidate, ok := LevelByID(p.MediaType, candidateQualityID)
	if candidateQualityID <= 0 || !ok {
		return Decision{Kind: DecisionReject, Reason: ReasonUnknownQuality}, nil
	}

	if !p.IsAllowed(candidate.ID) {
		return Decision{
			Kind:               DecisionReject,
			Reason:             ReasonQualityNotWanted,
			CandidateQualityID: candidate.ID,
		}, nil
	}

	if current == nil {
		return Decision{Kind: DecisionAcceptNew, CandidateQualityID: candidate.ID}, nil
	}

	// A file of unknown quality ranks below every level and is always
	// eligible for replacement.
	currentLevel, ok := LevelByID(p.MediaType, current.QualityID)
	if current.QualityID <= 0 || !ok {
		return Decision{
			Kind:               DecisionUpgrade,
			CandidateQualityID: candidate.ID,
			SupersedesFileID:   current.FileID,
		}, nil
	}

	// The cutoff is an absolute ceiling: once met, no candidate triggers an
	// upgrade, regardless of the upgrade flag.
	if currentLevel.Rank >= p.CutoffRank() {
		return Decision{
			Kind:               DecisionKeepCurrent,
			Reason:             ReasonCutoffMet,
			CandidateQualityID: candidate.ID,
		}, nil
	}

	if !p.UpgradeAllowed {
		return Decision{
			Kind:               DecisionKeepCurrent,
			Reason:             ReasonUpgradesDisabled,
			CandidateQualityID: candidate.ID,
		}, nil
	}

	switch {
	case candidate.Rank > currentLevel.Rank:
		return Decision{
			Kind:               DecisionUpgrade,
			CandidateQualityID: candidate.ID,
			SupersedesFileID:   current.FileID,
		}, nil
	case candidate.Rank == currentLevel.Rank:
		// Equal rank always favors the existing file: no churn for
		// equivalent quality.
		return Decision{
			Kind:               DecisionKeepCurrent,
			Reason:             ReasonNoImprovement,
			CandidateQualityID: candidate.ID,
		}, nil
	default:
		return Decision{
			Kind:               DecisionReject,
			Reason:             ReasonLowerQuality,
			CandidateQualityID: candidate.ID,
		}, nil
	}
}
