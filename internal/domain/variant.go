package domain

import (
	"encoding/json"
	"fmt"
)

// VariantSourceKind tags where a classified variant instance came from.
type VariantSourceKind string

const (
	ANALYSIS_SOURCE VariantSourceKind = "ANALYSIS"
	GERMLINE_SOURCE VariantSourceKind = "SWGS_GERMLINE"
	SOMATIC_SOURCE  VariantSourceKind = "SWGS_SOMATIC"
	MANUAL_SOURCE   VariantSourceKind = "MANUAL"
)

// VariantSource identifies the sample-level record a classification was raised
// from. It carries display fields only; scoring and signoff never inspect it.
type VariantSource interface {
	Kind() VariantSourceKind
}

// AnalysisVariant comes from a panel analysis (TSO500, ctDNA, CRM, BRCA).
type AnalysisVariant struct {
	SampleID    string `json:"sample_id"`
	WorksheetID string `json:"worksheet_id"`
	Panel       string `json:"panel"`
	TumourType  string `json:"tumour_type,omitempty"`
}

// GermlineVariant comes from a whole genome germline call set.
type GermlineVariant struct {
	PatientID  string `json:"patient_id"`
	SampleID   string `json:"sample_id"`
	Indication string `json:"indication,omitempty"`
}

// SomaticVariant comes from a whole genome tumour call set.
type SomaticVariant struct {
	PatientID      string `json:"patient_id"`
	TumourSampleID string `json:"tumour_sample_id"`
	TumourType     string `json:"tumour_type,omitempty"`
	Indication     string `json:"indication,omitempty"`
}

// ManualVariant was entered directly by a reviewer.
type ManualVariant struct {
	SampleID    string `json:"sample_id,omitempty"`
	WorksheetID string `json:"worksheet_id,omitempty"`
	Panel       string `json:"panel,omitempty"`
	TumourType  string `json:"tumour_type,omitempty"`
	EnteredBy   string `json:"entered_by,omitempty"`
}

func (AnalysisVariant) Kind() VariantSourceKind { return ANALYSIS_SOURCE }
func (GermlineVariant) Kind() VariantSourceKind { return GERMLINE_SOURCE }
func (SomaticVariant) Kind() VariantSourceKind  { return SOMATIC_SOURCE }
func (ManualVariant) Kind() VariantSourceKind   { return MANUAL_SOURCE }

// EncodeVariantSource returns the stored kind and JSON payload of a source.
// A nil source is stored as a manual entry with no fields.
func EncodeVariantSource(src VariantSource) (VariantSourceKind, []byte, error) {
	if src == nil {
		src = ManualVariant{}
	}
	payload, err := json.Marshal(src)
	if err != nil {
		return "", nil, fmt.Errorf("encoding variant source: %w", err)
	}
	return src.Kind(), payload, nil
}

// DecodeVariantSource rebuilds a source from its stored kind and payload.
func DecodeVariantSource(kind VariantSourceKind, payload []byte) (VariantSource, error) {
	var (
		src VariantSource
		err error
	)
	switch kind {
	case ANALYSIS_SOURCE:
		var v AnalysisVariant
		err = json.Unmarshal(payload, &v)
		src = v
	case GERMLINE_SOURCE:
		var v GermlineVariant
		err = json.Unmarshal(payload, &v)
		src = v
	case SOMATIC_SOURCE:
		var v SomaticVariant
		err = json.Unmarshal(payload, &v)
		src = v
	case MANUAL_SOURCE, "":
		var v ManualVariant
		if len(payload) > 0 {
			err = json.Unmarshal(payload, &v)
		}
		src = v
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidVariantSrc, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s variant source: %w", kind, err)
	}
	return src, nil
}
