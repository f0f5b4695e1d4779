package variants

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// PassthroughTransformer copies source bytes to the output path without
// re-encoding. It stands in for the external codec in deployments that
// delegate transformation to a downstream service, and in tests; the
// reported dimensions echo the request.
type PassthroughTransformer struct{}

// NewPassthroughTransformer creates a copy-only transformer
func NewPassthroughTransformer() *PassthroughTransformer {
	return &PassthroughTransformer{}
}

// Transform copies the source file to outputPath
func (t *PassthroughTransformer) Transform(ctx context.Context, sourcePath, outputPath string, params TransformParams) (*TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", sourcePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", outputPath, err)
	}

	// Write via a temp file and rename so readers never see partial output
	tmp := outputPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", outputPath, err)
	}

	return &TransformResult{
		Width:     params.Width,
		Height:    params.Height,
		SizeBytes: int64(len(data)),
	}, nil
}
