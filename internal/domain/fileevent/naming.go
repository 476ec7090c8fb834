package fileevent

import (
	"path"
	"regexp"
	"strings"
)

// FileType is the document kind encoded in a file name
type FileType string

const (
	FileTypeInvoice FileType = "INVOICE"
	FileTypeW9      FileType = "W9"
	FileTypeReceipt FileType = "RECEIPT"
	FileTypeW8BEN   FileType = "W8-BEN"
	FileTypeW8BENE  FileType = "W8-BEN-E"
)

// IsTaxForm reports whether the document is a vendor tax form
func (t FileType) IsTaxForm() bool {
	return t == FileTypeW9 || t == FileTypeW8BEN || t == FileTypeW8BENE
}

// POType distinguishes vendor POs from credit card / petty cash POs
type POType string

const (
	POTypeVendor POType = "vendor"
	POTypeCC     POType = "cc"
)

const defaultFileNumber = "01"

// POFolderMarker is the folder that holds the PO folders of a project
const POFolderMarker = "1. Purchase Orders"

var (
	fileNamePattern = regexp.MustCompile(
		`(?i)^(\d+)_(\d+)(?:_(\d+))?\s+(.+?)\s+(Invoice|W9|Receipt|W8-BEN-E|W8-BEN)(?:\s*(\d+))?\.(pdf|png|jpg|jpeg|tiff|bmp|heic)$`)
	poFolderPattern = regexp.MustCompile(`^(\d+)[_-](\d+)\s+(.*?)(\d{4})?$`)
	projectPattern  = regexp.MustCompile(`^(\d+)\s*[-_]\s*.*`)
)

// FileInfo holds the identifiers encoded in a document file name
type FileInfo struct {
	ProjectID  string
	PONumber   string
	FileNumber string
	VendorName string
	FileType   FileType
}

// FolderInfo holds the identifiers encoded in a PO folder path
type FolderInfo struct {
	ProjectID  string
	PONumber   string
	VendorName string
	POType     POType
}

// ParseFilename extracts project, PO, file number, vendor and document type
// from names like "2416_05_02 Acme Invoice.pdf".
func ParseFilename(name string) (FileInfo, bool) {
	m := fileNamePattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return FileInfo{}, false
	}
	fileNumber := m[3]
	if fileNumber == "" {
		fileNumber = defaultFileNumber
	}
	return FileInfo{
		ProjectID:  m[1],
		PONumber:   m[2],
		FileNumber: fileNumber,
		VendorName: strings.TrimSpace(m[4]),
		FileType:   FileType(strings.ToUpper(m[5])),
	}, true
}

// ParseFolderPath walks the path from the deepest segment up and returns the
// PO folder and project identifiers. Both must be present. A trailing document
// file name is ignored.
func ParseFolderPath(p string) (FolderInfo, bool) {
	parts := splitPath(p)
	if n := len(parts); n > 0 && fileNamePattern.MatchString(parts[n-1]) {
		parts = parts[:n-1]
	}

	var info FolderInfo
	poIndex := -1
	for i := len(parts) - 1; i >= 0; i-- {
		if m := poFolderPattern.FindStringSubmatch(parts[i]); m != nil {
			info.PONumber = m[2]
			info.VendorName = strings.TrimSpace(m[3])
			info.POType = POTypeVendor
			if m[4] != "" {
				info.POType = POTypeCC
				info.VendorName = strings.TrimSpace(info.VendorName + " " + m[4])
			}
			poIndex = i
			break
		}
	}
	if poIndex < 0 {
		return FolderInfo{}, false
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if i == poIndex {
			continue
		}
		if m := projectPattern.FindStringSubmatch(parts[i]); m != nil {
			info.ProjectID = m[1]
			break
		}
	}
	if info.ProjectID == "" {
		return FolderInfo{}, false
	}
	return info, true
}

// IsPOFolder reports whether the path is <Project>/1. Purchase Orders/<PO folder>.
// A trailing segment containing a dot is treated as a file.
func IsPOFolder(p string) bool {
	parts := splitPath(p)
	if len(parts) > 0 && strings.Contains(parts[len(parts)-1], ".") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 3 {
		return false
	}
	n := len(parts)
	if !strings.EqualFold(parts[n-2], POFolderMarker) {
		return false
	}
	return poFolderPattern.MatchString(parts[n-1]) && projectPattern.MatchString(parts[n-3])
}

// ParentPath returns the path without its last segment, or "" at the root
func ParentPath(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, "/"), "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}

// BaseName returns the last path segment
func BaseName(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, "/"), "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

func splitPath(p string) []string {
	raw := strings.Split(strings.ReplaceAll(p, `\`, "/"), "/")
	parts := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
