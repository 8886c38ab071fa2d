package fs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"docchat/internal/domain"
)

// Loader reads corpus files into source documents. Plain text is read as is;
// PDFs go through an external text extractor (pdftotext by default).
type Loader struct {
	pdfCommand string
}

func NewLoader(pdfCommand string) *Loader {
	if pdfCommand == "" {
		pdfCommand = "pdftotext"
	}
	return &Loader{pdfCommand: pdfCommand}
}

// Load reads path. The source id is the path relative to root.
func (l *Loader) Load(ctx context.Context, root, path string) (domain.SourceDocument, error) {
	sourceID, err := SourceID(root, path)
	if err != nil {
		return domain.SourceDocument{}, err
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = l.extractPDF(ctx, path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("failed to load %s: %w", sourceID, err)
	}

	return domain.SourceDocument{
		SourceID: sourceID,
		Path:     path,
		Text:     strings.ToValidUTF8(text, "�"),
	}, nil
}

// extractPDF runs "<cmd> -layout -enc UTF-8 <path> -" and returns stdout.
func (l *Loader) extractPDF(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.pdfCommand, "-layout", "-enc", "UTF-8", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", l.pdfCommand, err, msg)
		}
		return "", fmt.Errorf("%s: %w", l.pdfCommand, err)
	}
	return stdout.String(), nil
}

// SourceID returns path relative to root with forward slashes, or the base
// name when path lies outside root.
func SourceID(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(absPath), nil
	}
	return filepath.ToSlash(rel), nil
}
