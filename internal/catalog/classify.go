package catalog

import (
	"playshelf/catalogsearch/internal/domain"
)

type bucketLabel struct {
	bucket domain.Bucket
	label  string
}

// codeTable maps the provider's fine-grained type codes to buckets. The
// coarser legacy category codes share the same numbering, so both signals
// resolve through this table.
var codeTable = map[int]bucketLabel{
	0:  {domain.BucketMainline, "Main Game"},
	1:  {domain.BucketAdditionalContent, "DLC"},
	2:  {domain.BucketAdditionalContent, "Expansion"},
	3:  {domain.BucketAdditionalContent, "Bundle"},
	4:  {domain.BucketAdditionalContent, "Standalone Expansion"},
	5:  {domain.BucketFanOrFork, "Mod"},
	6:  {domain.BucketAdditionalContent, "Episode"},
	7:  {domain.BucketAdditionalContent, "Season"},
	8:  {domain.BucketEnhancedRelease, "Remake"},
	9:  {domain.BucketEnhancedRelease, "Remaster"},
	10: {domain.BucketEnhancedRelease, "Expanded Game"},
	11: {domain.BucketEnhancedRelease, "Port"},
	12: {domain.BucketFanOrFork, "Fork"},
	13: {domain.BucketAdditionalContent, "Pack"},
	14: {domain.BucketAdditionalContent, "Update"},
}

// Classify assigns a bucket to an entry. Signals are consulted in fixed
// precedence: type code, legacy category code, version-parent and parent
// relationships, then a mainline default that biases toward inclusion.
func Classify(entry domain.CatalogEntry) domain.ClassificationResult {
	if entry.TypeCode != nil {
		if hit, ok := codeTable[*entry.TypeCode]; ok {
			return domain.ClassificationResult{Bucket: hit.bucket, Label: hit.label, Source: domain.SourceTypeCode}
		}
		return domain.ClassificationResult{Bucket: domain.BucketOther, Label: "Other", Source: domain.SourceTypeCode}
	}
	if entry.CategoryCode != nil {
		if hit, ok := codeTable[*entry.CategoryCode]; ok {
			return domain.ClassificationResult{Bucket: hit.bucket, Label: hit.label, Source: domain.SourceCategory}
		}
		return domain.ClassificationResult{Bucket: domain.BucketOther, Label: "Other", Source: domain.SourceCategory}
	}
	if entry.VersionParentID != nil {
		return domain.ClassificationResult{Bucket: domain.BucketEnhancedRelease, Label: "Alternate Version", Source: domain.SourceRelationship}
	}
	if entry.ParentID != nil {
		return domain.ClassificationResult{Bucket: domain.BucketAdditionalContent, Label: "Related Content", Source: domain.SourceRelationship}
	}
	return domain.ClassificationResult{Bucket: domain.BucketMainline, Label: "Main Game", Source: domain.SourceFallback}
}
