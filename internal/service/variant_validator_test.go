package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svd-classify/internal/domain"
)

func TestValidateVariant(t *testing.T) {
	tests := []struct {
		name    string
		variant domain.Variant
		field   string
	}{
		{"transcript prefixed coding", domain.Variant{HGVSc: "NM_004333.6:c.1799T>A"}, ""},
		{"bare coding", domain.Variant{HGVSc: "c.1799T>A", HGVSp: "p.(Val600Glu)"}, ""},
		{"ensembl transcript", domain.Variant{HGVSc: "ENST00000288602.11:c.1799T>A", Transcript: "ENST00000288602.11"}, ""},
		{"full display fields", domain.Variant{HGVSc: " c.35G>A ", HGVSp: "NP_004976.2:p.Gly12Asp", Gene: "KRAS", Transcript: "NM_004985.5"}, ""},
		{"hyphenated gene", domain.Variant{HGVSc: "c.1A>G", Gene: "HLA-A"}, ""},
		{"empty", domain.Variant{}, "hgvs_c"},
		{"genomic notation", domain.Variant{HGVSc: "NC_000007.14:g.140753336A>T"}, "hgvs_c"},
		{"free text protein", domain.Variant{HGVSc: "c.1799T>A", HGVSp: "V600E"}, "hgvs_p"},
		{"lowercase gene", domain.Variant{HGVSc: "c.1799T>A", Gene: "braf"}, "gene"},
		{"trailing hyphen", domain.Variant{HGVSc: "c.1799T>A", Gene: "HLA-"}, "gene"},
		{"unversioned transcript", domain.Variant{HGVSc: "c.1799T>A", Transcript: "NM_004333"}, "transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.variant
			err := ValidateVariant(&v)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateVariant_Trims(t *testing.T) {
	v := domain.Variant{HGVSc: "  c.35G>A\t", Gene: " KRAS "}
	require.NoError(t, ValidateVariant(&v))
	assert.Equal(t, "c.35G>A", v.HGVSc)
	assert.Equal(t, "KRAS", v.Gene)
}

func TestSampleInfoFor(t *testing.T) {
	tests := []struct {
		name string
		src  domain.VariantSource
		want SampleInfo
	}{
		{
			name: "analysis",
			src:  domain.AnalysisVariant{SampleID: "24M01234", WorksheetID: "WS140001", Panel: "TSO500", TumourType: "Melanoma"},
			want: SampleInfo{Source: domain.ANALYSIS_SOURCE, SampleID: "24M01234", WorksheetID: "WS140001", Panel: "TSO500", TumourType: "Melanoma"},
		},
		{
			name: "germline",
			src:  domain.GermlineVariant{PatientID: "p-1", SampleID: "s-1", Indication: "R208"},
			want: SampleInfo{Source: domain.GERMLINE_SOURCE, SampleID: "s-1", PatientID: "p-1", Indication: "R208"},
		},
		{
			name: "somatic",
			src:  domain.SomaticVariant{PatientID: "p-2", TumourSampleID: "t-2", TumourType: "Glioma"},
			want: SampleInfo{Source: domain.SOMATIC_SOURCE, SampleID: "t-2", PatientID: "p-2", TumourType: "Glioma"},
		},
		{
			name: "manual",
			src:  domain.ManualVariant{EnteredBy: "alice", Panel: "Lung"},
			want: SampleInfo{Source: domain.MANUAL_SOURCE, Panel: "Lung"},
		},
		{
			name: "missing",
			src:  nil,
			want: SampleInfo{Source: domain.MANUAL_SOURCE},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleInfoFor(tt.src))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "Check 0", Status(nil))
	assert.Equal(t, "Check 1", Status([]*domain.Check{{Sequence: 1}}))
	assert.Equal(t, "Check 2", Status([]*domain.Check{{Sequence: 1, CheckComplete: true}, {Sequence: 3}}))
	assert.Equal(t, StatusComplete, Status([]*domain.Check{{Sequence: 1, CheckComplete: true}}))
}
