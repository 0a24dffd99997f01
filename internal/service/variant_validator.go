package service

import (
	"regexp"
	"strings"

	"github.com/svd-classify/internal/domain"
)

// Notation patterns for variants registered with the engine
var (
	// Coding HGVS, optionally prefixed with its transcript: NM_004333.6:c.1799T>A
	codingPattern = regexp.MustCompile(`^((NM_|NR_|XM_|XR_)\d+\.\d+|ENST\d{11}\.\d+)?:?[cn]\.\S+$`)

	// Protein HGVS: p.(Val600Glu), p.V600E, NP_004324.2:p.Val600Glu
	proteinPattern = regexp.MustCompile(`^((NP_|XP_)\d+\.\d+:)?p\.\S+$`)

	// Gene symbol following HGNC conventions
	geneSymbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]*$`)

	// RefSeq or Ensembl transcript
	transcriptPattern = regexp.MustCompile(`^((NM_|NR_|XM_|XR_)\d+\.\d+|ENST\d{11}\.\d+)$`)
)

// ValidateVariant checks the display fields of a variant before it is stored.
// HGVSc is required; everything else is optional but must be well formed.
func ValidateVariant(v *domain.Variant) error {
	v.HGVSc = strings.TrimSpace(v.HGVSc)
	v.HGVSp = strings.TrimSpace(v.HGVSp)
	v.Gene = strings.TrimSpace(v.Gene)
	v.Transcript = strings.TrimSpace(v.Transcript)

	if v.HGVSc == "" {
		return domain.NewValidationError("hgvs_c", "HGVS notation cannot be empty", v.HGVSc)
	}
	if !codingPattern.MatchString(v.HGVSc) {
		return domain.NewValidationError("hgvs_c", "Invalid coding HGVS notation format", v.HGVSc)
	}
	if v.HGVSp != "" && !proteinPattern.MatchString(v.HGVSp) {
		return domain.NewValidationError("hgvs_p", "Invalid protein HGVS notation format", v.HGVSp)
	}
	if v.Gene != "" {
		if !geneSymbolPattern.MatchString(v.Gene) {
			return domain.NewValidationError("gene", "Invalid gene symbol format", v.Gene)
		}
		if strings.HasSuffix(v.Gene, "-") || strings.Contains(v.Gene, "--") {
			return domain.NewValidationError("gene", "Gene symbol cannot end with or repeat a hyphen", v.Gene)
		}
	}
	if v.Transcript != "" && !transcriptPattern.MatchString(v.Transcript) {
		return domain.NewValidationError("transcript", "Invalid transcript ID format", v.Transcript)
	}
	return nil
}
