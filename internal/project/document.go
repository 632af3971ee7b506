package project

import (
	"path/filepath"
	"strings"
)

// FileKind classifies a document of the weft language. The kind is derived
// from the file extension and sub-classified by filename convention.
type FileKind int

const (
	// FileKindUnknown marks files that are not weft documents.
	FileKindUnknown FileKind = iota
	// FileKindLegacy marks markup-only pages (*.wtml).
	FileKindLegacy
	// FileKindComponent marks component files (*.weft).
	FileKindComponent
	// FileKindComponentImport marks _imports.weft files, which contribute
	// directives to every component in their directory subtree.
	FileKindComponentImport
)

// String returns the string representation of the file kind.
func (k FileKind) String() string {
	switch k {
	case FileKindLegacy:
		return "legacy"
	case FileKindComponent:
		return "component"
	case FileKindComponentImport:
		return "componentImport"
	default:
		return "unknown"
	}
}

const (
	// LegacyExtension is the extension of markup-only pages.
	LegacyExtension = ".wtml"
	// ComponentExtension is the extension of component files.
	ComponentExtension = ".weft"
	// ImportsFileName sub-classifies a component file as an import file.
	ImportsFileName = "_imports.weft"
	// GeneratedSuffix marks generated source derived from weft documents.
	GeneratedSuffix = "_weft.go"
)

// ClassifyFile returns the file kind for a path. Paths that are not weft
// documents classify as FileKindUnknown.
func ClassifyFile(path string) FileKind {
	base := strings.ToLower(filepath.Base(path))
	switch filepath.Ext(base) {
	case ComponentExtension:
		if base == ImportsFileName {
			return FileKindComponentImport
		}
		return FileKindComponent
	case LegacyExtension:
		return FileKindLegacy
	default:
		return FileKindUnknown
	}
}

// IsGeneratedFile reports whether the path is generated source derived from
// a weft document.
func IsGeneratedFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), GeneratedSuffix)
}

// DocumentHandle is an immutable reference to a document within a project.
// Handles are compared structurally to decide document adds and removes
// across snapshot generations.
type DocumentHandle struct {
	// FilePath is the absolute path on disk.
	FilePath string `json:"filePath"`
	// TargetPath is the project-relative path with forward slashes, used as
	// the document identity inside generated output.
	TargetPath string `json:"targetPath"`
	// Kind is the classified file kind.
	Kind FileKind `json:"kind"`
}

// NewDocumentHandle builds a handle for a file within projectDir, deriving
// the normalized target path and kind.
func NewDocumentHandle(projectDir, filePath string) DocumentHandle {
	target, err := filepath.Rel(projectDir, filePath)
	if err != nil {
		target = filepath.Base(filePath)
	}
	return DocumentHandle{
		FilePath:   filePath,
		TargetPath: filepath.ToSlash(target),
		Kind:       ClassifyFile(filePath),
	}
}
