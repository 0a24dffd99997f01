package service

import (
	"sort"

	"github.com/svd-classify/internal/domain"
)

// CodeDifference is a code answered differently by the last two checks.
type CodeDifference struct {
	Code     string `json:"code"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Disagreement compares the latest two checks of a classification.
type Disagreement struct {
	Compared          bool             `json:"compared"`
	PreviousCheck     int              `json:"previous_check,omitempty"`
	CurrentCheck      int              `json:"current_check,omitempty"`
	Codes             []CodeDifference `json:"codes,omitempty"`
	FinalClassMatches bool             `json:"final_class_matches"`
}

// Agrees reports whether nothing differs. Fewer than two checks always agree.
func (d Disagreement) Agrees() bool {
	return !d.Compared || (len(d.Codes) == 0 && d.FinalClassMatches)
}

// compareChecks diffs two checks. Ledgers are compared code by code only when
// both checks have one; a reused result is compared on final class alone.
func compareChecks(prev, cur *domain.Check, prevLedger, curLedger []*domain.CodeAnswer) Disagreement {
	d := Disagreement{
		Compared:          true,
		PreviousCheck:     prev.Sequence,
		CurrentCheck:      cur.Sequence,
		FinalClassMatches: prev.FinalClass == cur.FinalClass,
	}
	if len(prevLedger) == 0 || len(curLedger) == 0 {
		return d
	}

	before := tokensByCode(prevLedger)
	after := tokensByCode(curLedger)
	codes := make([]string, 0, len(before))
	for code := range before {
		codes = append(codes, code)
	}
	for code := range after {
		if _, ok := before[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	for _, code := range codes {
		if before[code] != after[code] {
			d.Codes = append(d.Codes, CodeDifference{Code: code, Previous: before[code], Current: after[code]})
		}
	}
	return d
}

func tokensByCode(ledger []*domain.CodeAnswer) map[string]string {
	out := make(map[string]string, len(ledger))
	for _, a := range ledger {
		out[a.Code] = a.Token()
	}
	return out
}
