package catalog

import (
	"testing"

	"playshelf/catalogsearch/internal/domain"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestClassifyTypeCodeTable(t *testing.T) {
	cases := []struct {
		code   int
		bucket domain.Bucket
		label  string
	}{
		{0, domain.BucketMainline, "Main Game"},
		{1, domain.BucketAdditionalContent, "DLC"},
		{2, domain.BucketAdditionalContent, "Expansion"},
		{3, domain.BucketAdditionalContent, "Bundle"},
		{4, domain.BucketAdditionalContent, "Standalone Expansion"},
		{5, domain.BucketFanOrFork, "Mod"},
		{6, domain.BucketAdditionalContent, "Episode"},
		{7, domain.BucketAdditionalContent, "Season"},
		{8, domain.BucketEnhancedRelease, "Remake"},
		{9, domain.BucketEnhancedRelease, "Remaster"},
		{10, domain.BucketEnhancedRelease, "Expanded Game"},
		{11, domain.BucketEnhancedRelease, "Port"},
		{12, domain.BucketFanOrFork, "Fork"},
		{13, domain.BucketAdditionalContent, "Pack"},
		{14, domain.BucketAdditionalContent, "Update"},
	}
	for _, tc := range cases {
		result := Classify(domain.CatalogEntry{ExternalID: 1, Title: "x", TypeCode: intPtr(tc.code)})
		if result.Bucket != tc.bucket || result.Label != tc.label {
			t.Fatalf("code %d: got (%v, %q), want (%v, %q)", tc.code, result.Bucket, result.Label, tc.bucket, tc.label)
		}
		if result.Source != domain.SourceTypeCode {
			t.Fatalf("code %d: source = %q, want typeCode", tc.code, result.Source)
		}
	}
}

func TestClassifyUnknownTypeCode(t *testing.T) {
	result := Classify(domain.CatalogEntry{TypeCode: intPtr(99)})
	if result.Bucket != domain.BucketOther || result.Label != "Other" {
		t.Fatalf("unknown code: got (%v, %q)", result.Bucket, result.Label)
	}
}

func TestClassifyCategoryFallback(t *testing.T) {
	result := Classify(domain.CatalogEntry{CategoryCode: intPtr(9)})
	if result.Bucket != domain.BucketEnhancedRelease || result.Label != "Remaster" {
		t.Fatalf("category 9: got (%v, %q)", result.Bucket, result.Label)
	}
	if result.Source != domain.SourceCategory {
		t.Fatalf("category 9: source = %q, want category", result.Source)
	}
}

func TestClassifyTypeCodeBeatsCategory(t *testing.T) {
	result := Classify(domain.CatalogEntry{TypeCode: intPtr(0), CategoryCode: intPtr(1)})
	if result.Bucket != domain.BucketMainline || result.Source != domain.SourceTypeCode {
		t.Fatalf("got (%v, %q)", result.Bucket, result.Source)
	}
}

func TestClassifyRelationshipFallbacks(t *testing.T) {
	version := Classify(domain.CatalogEntry{VersionParentID: int64Ptr(10)})
	if version.Bucket != domain.BucketEnhancedRelease || version.Label != "Alternate Version" || version.Source != domain.SourceRelationship {
		t.Fatalf("version parent: got %+v", version)
	}

	parent := Classify(domain.CatalogEntry{ParentID: int64Ptr(10)})
	if parent.Bucket != domain.BucketAdditionalContent || parent.Label != "Related Content" || parent.Source != domain.SourceRelationship {
		t.Fatalf("parent: got %+v", parent)
	}

	// A version parent outranks a plain parent when both are present.
	both := Classify(domain.CatalogEntry{ParentID: int64Ptr(10), VersionParentID: int64Ptr(11)})
	if both.Label != "Alternate Version" {
		t.Fatalf("both parents: got %+v", both)
	}
}

func TestClassifyDefaultIsMainline(t *testing.T) {
	result := Classify(domain.CatalogEntry{ExternalID: 1, Title: "bare"})
	if result.Bucket != domain.BucketMainline || result.Label != "Main Game" || result.Source != domain.SourceFallback {
		t.Fatalf("default: got %+v", result)
	}
}
