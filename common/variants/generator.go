// Package variants materializes the derived artifacts for an accepted
// upload: resized thumbnails, alternate-format re-encodes and an
// optimized copy of the original. The actual codec work happens behind
// the Transformer interface; this package owns which artifacts a job
// produces and where each one lands.
package variants

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pixelbay/mediahost/common/models"
)

// TransformParams describes one codec invocation
type TransformParams struct {
	Width   uint   // 0 keeps the source width
	Height  uint   // 0 keeps aspect ratio
	Format  string // "webp", "avif", "jpeg"
	Quality int    // 1..100
}

// TransformResult reports what the codec produced
type TransformResult struct {
	Width     uint
	Height    uint
	SizeBytes int64
}

// Transformer is the boundary to the external image codec. Implementations
// must write the output atomically to outputPath; overwriting an existing
// file is correct (retries re-run steps).
type Transformer interface {
	Transform(ctx context.Context, sourcePath, outputPath string, params TransformParams) (*TransformResult, error)
}

// QualityDefaults holds per-format encode quality fallbacks
type QualityDefaults struct {
	WebP int
	AVIF int
	JPEG int
}

// Generator turns one processing job into its variant list
type Generator struct {
	transformer Transformer
	outputDir   string
	quality     QualityDefaults
}

// NewGenerator creates a variant generator writing under outputDir
func NewGenerator(transformer Transformer, outputDir string, quality QualityDefaults) *Generator {
	return &Generator{
		transformer: transformer,
		outputDir:   outputDir,
		quality:     quality,
	}
}

// Generate runs every generation step for the job in sequence and returns
// the produced variants. Each step writes to a deterministic path derived
// from (image, kind, width, format), so re-running after a retry
// overwrites the previous output instead of duplicating it; the returned
// list is keyed the same way and carries no duplicates.
func (g *Generator) Generate(ctx context.Context, job *models.ProcessingJob) ([]models.ArtifactVariant, error) {
	type step struct {
		kind   models.VariantKind
		params TransformParams
	}

	var steps []step
	for _, size := range dedupeSizes(job.Params.ThumbnailSizes, job.Params.CustomSizes) {
		steps = append(steps, step{
			kind: models.VariantThumbnail,
			params: TransformParams{
				Width:   size,
				Format:  "webp",
				Quality: g.qualityFor(job, "webp"),
			},
		})
	}
	if job.Params.Formats.WebP {
		steps = append(steps, step{
			kind:   models.VariantWebP,
			params: TransformParams{Format: "webp", Quality: g.qualityFor(job, "webp")},
		})
	}
	if job.Params.Formats.AVIF {
		steps = append(steps, step{
			kind:   models.VariantAVIF,
			params: TransformParams{Format: "avif", Quality: g.qualityFor(job, "avif")},
		})
	}
	// The optimized re-encode of the original is always produced
	steps = append(steps, step{
		kind:   models.VariantOptimized,
		params: TransformParams{Format: "jpeg", Quality: g.qualityFor(job, "jpeg")},
	})

	produced := make([]models.ArtifactVariant, 0, len(steps))
	seen := make(map[string]bool, len(steps))

	for _, st := range steps {
		outputPath := g.OutputPath(job.ImageID.String(), st.kind, st.params.Width, st.params.Format)

		result, err := g.transformer.Transform(ctx, job.Params.SourcePath, outputPath, st.params)
		if err != nil {
			return nil, fmt.Errorf("generate %s %dpx %s for image %s: %w",
				st.kind, st.params.Width, st.params.Format, job.ImageID, err)
		}

		variant := models.ArtifactVariant{
			Kind:      st.kind,
			Width:     result.Width,
			Height:    result.Height,
			Format:    st.params.Format,
			SizeBytes: result.SizeBytes,
			Path:      outputPath,
			URL:       variantURL(job.ImageID.String(), st.kind, st.params.Width, st.params.Format),
		}

		key := variantKey(st.kind, st.params.Width, st.params.Format)
		if seen[key] {
			continue
		}
		seen[key] = true
		produced = append(produced, variant)
	}

	return produced, nil
}

// OutputPath is the deterministic location for one variant
func (g *Generator) OutputPath(imageID string, kind models.VariantKind, width uint, format string) string {
	return filepath.Join(g.outputDir, imageID, fmt.Sprintf("%s_%d.%s", kind, width, format))
}

func (g *Generator) qualityFor(job *models.ProcessingJob, format string) int {
	if q, ok := job.Params.Quality[format]; ok && q >= 1 && q <= 100 {
		return q
	}
	switch format {
	case "webp":
		return g.quality.WebP
	case "avif":
		return g.quality.AVIF
	default:
		return g.quality.JPEG
	}
}

func variantURL(imageID string, kind models.VariantKind, width uint, format string) string {
	return fmt.Sprintf("/v1/images/%s/variants/%s_%d.%s", imageID, kind, width, format)
}

func variantKey(kind models.VariantKind, width uint, format string) string {
	return fmt.Sprintf("%s/%d/%s", kind, width, format)
}

func dedupeSizes(groups ...[]uint) []uint {
	seen := make(map[uint]bool)
	var out []uint
	for _, group := range groups {
		for _, size := range group {
			if size == 0 || seen[size] {
				continue
			}
			seen[size] = true
			out = append(out, size)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
