package service

import "github.com/svd-classify/internal/domain"

// SampleInfo is the sample-level context shown alongside a classification.
type SampleInfo struct {
	Source      domain.VariantSourceKind `json:"source"`
	SampleID    string                   `json:"sample_id,omitempty"`
	WorksheetID string                   `json:"worksheet_id,omitempty"`
	Panel       string                   `json:"panel,omitempty"`
	TumourType  string                   `json:"tumour_type,omitempty"`
	PatientID   string                   `json:"patient_id,omitempty"`
	Indication  string                   `json:"indication,omitempty"`
}

// SampleInfoFor resolves display fields from a variant source.
func SampleInfoFor(src domain.VariantSource) SampleInfo {
	switch v := src.(type) {
	case domain.AnalysisVariant:
		return SampleInfo{
			Source:      v.Kind(),
			SampleID:    v.SampleID,
			WorksheetID: v.WorksheetID,
			Panel:       v.Panel,
			TumourType:  v.TumourType,
		}
	case domain.GermlineVariant:
		return SampleInfo{
			Source:     v.Kind(),
			SampleID:   v.SampleID,
			PatientID:  v.PatientID,
			Indication: v.Indication,
		}
	case domain.SomaticVariant:
		return SampleInfo{
			Source:     v.Kind(),
			SampleID:   v.TumourSampleID,
			PatientID:  v.PatientID,
			TumourType: v.TumourType,
			Indication: v.Indication,
		}
	case domain.ManualVariant:
		return SampleInfo{
			Source:      v.Kind(),
			SampleID:    v.SampleID,
			WorksheetID: v.WorksheetID,
			Panel:       v.Panel,
			TumourType:  v.TumourType,
		}
	default:
		return SampleInfo{Source: domain.MANUAL_SOURCE}
	}
}
