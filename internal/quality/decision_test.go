package quality

import (
	"errors"
	"testing"
)

// videoProfile builds a movie profile allowing the given level IDs.
func videoProfile(allowed []int, cutoff int, upgradeAllowed bool) *Profile {
	return &Profile{
		ID:             1,
		MediaType:      MediaTypeMovie,
		Name:           "test",
		Cutoff:         cutoff,
		UpgradeAllowed: upgradeAllowed,
		Items:          buildItems(MediaTypeMovie, allowed),
	}
}

func TestDecideRejectsUnknownCandidate(t *testing.T) {
	p := videoProfile([]int{1, 10, 11}, 11, true)

	tests := []struct {
		name    string
		current *CurrentFile
	}{
		{"no current file", nil},
		{"with current file", &CurrentFile{FileID: 7, QualityID: 10}},
		{"current unknown quality", &CurrentFile{FileID: 7, QualityID: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decide(p, 0, tt.current)
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if d.Kind != DecisionReject || d.Reason != ReasonUnknownQuality {
				t.Errorf("Decide = %+v, want Reject(%s)", d, ReasonUnknownQuality)
			}
		})
	}
}

func TestDecideRejectsUnwantedQuality(t *testing.T) {
	p := videoProfile([]int{10, 11}, 11, true)

	d, err := Decide(p, 1, nil) // SDTV not allowed
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionReject || d.Reason != ReasonQualityNotWanted {
		t.Errorf("Decide = %+v, want Reject(%s)", d, ReasonQualityNotWanted)
	}
}

func TestDecideAcceptsNewWithoutCurrentFile(t *testing.T) {
	// No current file means any included quality is accepted, even above
	// the cutoff.
	p := videoProfile([]int{1, 10, 11, 17}, 11, true)

	for _, id := range []int{1, 10, 11, 17} {
		d, err := Decide(p, id, nil)
		if err != nil {
			t.Fatalf("Decide(%d) returned error: %v", id, err)
		}
		if d.Kind != DecisionAcceptNew {
			t.Errorf("Decide(%d) = %+v, want AcceptNew", id, d)
		}
		if d.CandidateQualityID != id {
			t.Errorf("Decide(%d).CandidateQualityID = %d", id, d.CandidateQualityID)
		}
	}
}

func TestDecideUpgradesUnknownCurrentQuality(t *testing.T) {
	// A file of unknown quality ranks below every level.
	p := videoProfile([]int{1, 10, 11}, 11, true)

	d, err := Decide(p, 1, &CurrentFile{FileID: 42, QualityID: 0})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionUpgrade {
		t.Errorf("Decide = %+v, want Upgrade", d)
	}
	if d.SupersedesFileID != 42 {
		t.Errorf("SupersedesFileID = %d, want 42", d.SupersedesFileID)
	}
}

func TestDecideCutoffIsAbsolute(t *testing.T) {
	// Once the current file meets the cutoff, no candidate upgrades it,
	// regardless of the upgrade flag.
	tests := []struct {
		name           string
		currentQuality int
		candidate      int
		upgradeAllowed bool
	}{
		{"at cutoff, better candidate", 11, 17, true},
		{"above cutoff, better candidate", 12, 17, true},
		{"at cutoff, upgrades disabled", 11, 17, false},
		{"at cutoff, equal candidate", 11, 11, true},
	}

	p := func(upgrade bool) *Profile {
		return videoProfile([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}, 11, upgrade)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decide(p(tt.upgradeAllowed), tt.candidate, &CurrentFile{FileID: 1, QualityID: tt.currentQuality})
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if d.Kind != DecisionKeepCurrent || d.Reason != ReasonCutoffMet {
				t.Errorf("Decide = %+v, want KeepCurrent(%s)", d, ReasonCutoffMet)
			}
		})
	}
}

func TestDecideBelowCutoff(t *testing.T) {
	allLevels := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}

	tests := []struct {
		name           string
		candidate      int
		current        int
		upgradeAllowed bool
		wantKind       DecisionKind
		wantReason     string
	}{
		{"upgrade to higher rank", 10, 8, true, DecisionUpgrade, ""},
		{"equal rank keeps current", 8, 8, true, DecisionKeepCurrent, ReasonNoImprovement},
		{"lower rank rejected", 4, 8, true, DecisionReject, ReasonLowerQuality},
		{"upgrades disabled", 10, 8, false, DecisionKeepCurrent, ReasonUpgradesDisabled},
		{"upgrades disabled beats comparison", 4, 8, false, DecisionKeepCurrent, ReasonUpgradesDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := videoProfile(allLevels, 11, tt.upgradeAllowed)
			d, err := Decide(p, tt.candidate, &CurrentFile{FileID: 1, QualityID: tt.current})
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", d.Kind, tt.wantKind)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestDecideSpecExample(t *testing.T) {
	// Profile = [SD, HD, UHD] analogue: SDTV(1), HDTV-1080p(8), Remux-2160p(17),
	// cutoff HDTV-1080p, upgrades allowed.
	p := videoProfile([]int{1, 8, 17}, 8, true)

	// current = SD, candidate = UHD -> Upgrade
	d, err := Decide(p, 17, &CurrentFile{FileID: 3, QualityID: 1})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionUpgrade || d.SupersedesFileID != 3 {
		t.Errorf("Decide = %+v, want Upgrade superseding file 3", d)
	}

	// current = HD -> Keep-Current(cutoff-met) even though UHD is better
	d, err = Decide(p, 17, &CurrentFile{FileID: 3, QualityID: 8})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionKeepCurrent || d.Reason != ReasonCutoffMet {
		t.Errorf("Decide = %+v, want KeepCurrent(%s)", d, ReasonCutoffMet)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	p := videoProfile([]int{1, 8, 11, 17}, 11, true)
	current := &CurrentFile{FileID: 9, QualityID: 8}

	first, err := Decide(p, 17, current)
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	for i := 0; i < 50; i++ {
		d, err := Decide(p, 17, current)
		if err != nil {
			t.Fatalf("Decide returned error: %v", err)
		}
		if d != first {
			t.Fatalf("Decide not deterministic: got %+v then %+v", first, d)
		}
	}
}

func TestDecideInvalidProfiles(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		wantErr error
	}{
		{"empty profile", videoProfile(nil, 11, true), ErrEmptyProfile},
		{"cutoff excluded", videoProfile([]int{1, 2}, 11, true), ErrCutoffExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decide(tt.profile, 11, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decide error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecideBookRanking(t *testing.T) {
	p := &Profile{
		ID:             2,
		MediaType:      MediaTypeBook,
		Name:           "eBook",
		Cutoff:         3, // EPUB
		UpgradeAllowed: true,
		Items:          buildItems(MediaTypeBook, []int{1, 2, 3, 4}),
	}

	// PDF file, EPUB candidate -> Upgrade
	d, err := Decide(p, 3, &CurrentFile{FileID: 5, QualityID: 1})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionUpgrade {
		t.Errorf("Decide = %+v, want Upgrade", d)
	}

	// EPUB file meets cutoff; AZW3 candidate does not upgrade it.
	d, err = Decide(p, 4, &CurrentFile{FileID: 5, QualityID: 3})
	if err != nil {
		t.Fatalf("Decide returned error: %v", err)
	}
	if d.Kind != DecisionKeepCurrent || d.Reason != ReasonCutoffMet {
		t.Errorf("Decide = %+v, want KeepCurrent(%s)", d, ReasonCutoffMet)
	}
}
