package upload

import (
	"fmt"
	"sort"
	"strings"
)

// supportedExtensions are the document types the ingestion pipeline can
// extract text from. Checked on the first chunk only.
var supportedExtensions = map[string]string{
	"pdf":     "PDF document",
	"doc":     "Word document",
	"docx":    "Word document",
	"xls":     "Excel spreadsheet",
	"xlsx":    "Excel spreadsheet",
	"ppt":     "PowerPoint presentation",
	"pptx":    "PowerPoint presentation",
	"txt":     "plain text",
	"rtf":     "rich text",
	"md":      "Markdown document",
	"odt":     "OpenDocument text",
	"ods":     "OpenDocument spreadsheet",
	"odp":     "OpenDocument presentation",
	"html":    "HTML document",
	"htm":     "HTML document",
	"xml":     "XML document",
	"json":    "JSON document",
	"csv":     "CSV document",
	"epub":    "EPUB book",
	"pages":   "Apple Pages document",
	"numbers": "Apple Numbers spreadsheet",
	"keynote": "Apple Keynote presentation",
}

// deniedExtensions are binary and media types that are explicitly refused
// with a type-specific message. Anything outside both sets gets generic
// guidance instead. Neither list is exhaustive; this is policy, not taxonomy.
var deniedExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "svg": {},
	"webp": {}, "tiff": {}, "ico": {}, "psd": {},
	"mp3": {}, "wav": {}, "flac": {}, "aac": {}, "ogg": {}, "wma": {}, "m4a": {},
	"mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {}, "mkv": {},
	"webm": {}, "m4v": {}, "3gp": {},
	"zip": {}, "rar": {}, "7z": {}, "tar": {}, "gz": {}, "bz2": {}, "xz": {},
	"exe": {}, "msi": {}, "dmg": {}, "pkg": {}, "deb": {}, "rpm": {},
	"ttf": {}, "otf": {}, "woff": {}, "woff2": {}, "eot": {},
	"dwg": {}, "dxf": {}, "step": {}, "iges": {},
	"db": {}, "sqlite": {}, "mdb": {}, "accdb": {},
	"bin": {}, "dat": {}, "iso": {}, "img": {},
}

// UnsupportedTypeError is the validation failure for a refused file name.
type UnsupportedTypeError struct {
	// FileType labels the refused type, e.g. "EXE file".
	FileType string
	// Extension is the lowercased extension, empty when none was found.
	Extension string
	// Message is the client-facing explanation.
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return e.Message
}

// extractExtension returns the lowercased extension of fileName, or "" when
// the name has no usable extension.
func extractExtension(fileName string) string {
	name := strings.TrimSpace(fileName)
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// ValidateFileName checks the file name against the supported-type policy.
// Returns nil for accepted names and *UnsupportedTypeError otherwise.
func ValidateFileName(fileName string) error {
	ext := extractExtension(fileName)
	if ext == "" {
		return &UnsupportedTypeError{
			FileType:  "unknown",
			Extension: "",
			Message:   "file name has no extension; supported document types include PDF, Word, Excel, PowerPoint and plain text",
		}
	}

	if _, ok := supportedExtensions[ext]; ok {
		return nil
	}

	fileType := strings.ToUpper(ext) + " file"
	if _, ok := deniedExtensions[ext]; ok {
		return &UnsupportedTypeError{
			FileType:  fileType,
			Extension: ext,
			Message:   fmt.Sprintf("%s uploads are not supported; only document formats can be ingested", fileType),
		}
	}

	return &UnsupportedTypeError{
		FileType:  fileType,
		Extension: ext,
		Message:   fmt.Sprintf("%s is not a recognized document format; try PDF, Word, Excel, PowerPoint or plain text", fileType),
	}
}

// SupportedType describes one accepted extension for the discovery endpoint.
type SupportedType struct {
	Extension   string `json:"extension"`
	Description string `json:"description"`
}

// SupportedTypes enumerates the accepted extensions in alphabetical order.
func SupportedTypes() []SupportedType {
	types := make([]SupportedType, 0, len(supportedExtensions))
	for ext, desc := range supportedExtensions {
		types = append(types, SupportedType{Extension: ext, Description: desc})
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].Extension < types[j].Extension
	})
	return types
}
