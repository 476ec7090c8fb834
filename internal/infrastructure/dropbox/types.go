package dropbox

import (
	"strings"
	"time"
)

// Entry tags in list_folder results
const (
	TagFile    = "file"
	TagFolder  = "folder"
	TagDeleted = "deleted"
)

// Metadata is one entry of a folder listing or change feed
type Metadata struct {
	Tag            string     `json:".tag"`
	Name           string     `json:"name"`
	ID             string     `json:"id,omitempty"`
	PathLower      string     `json:"path_lower,omitempty"`
	PathDisplay    string     `json:"path_display,omitempty"`
	ClientModified *time.Time `json:"client_modified,omitempty"`
	ServerModified *time.Time `json:"server_modified,omitempty"`
	Rev            string     `json:"rev,omitempty"`
	Size           int64      `json:"size,omitempty"`
}

// IsFile reports a file entry
func (m Metadata) IsFile() bool { return m.Tag == TagFile }

// IsFolder reports a folder entry
func (m Metadata) IsFolder() bool { return m.Tag == TagFolder }

// IsDeleted reports a deletion entry
func (m Metadata) IsDeleted() bool { return m.Tag == TagDeleted }

// Path prefers the display path over the lower-cased one
func (m Metadata) Path() string {
	if m.PathDisplay != "" {
		return m.PathDisplay
	}
	return m.PathLower
}

// Modified is server_modified, falling back to client_modified. Folders and
// deletions carry neither.
func (m Metadata) Modified() (time.Time, bool) {
	if m.ServerModified != nil {
		return *m.ServerModified, true
	}
	if m.ClientModified != nil {
		return *m.ClientModified, true
	}
	return time.Time{}, false
}

// ListFolderResult is one page of a listing
type ListFolderResult struct {
	Entries []Metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

// TemporaryLink is a short lived direct download link
type TemporaryLink struct {
	Link     string   `json:"link"`
	Metadata Metadata `json:"metadata"`
}

type sharedLink struct {
	URL string `json:"url"`
}

type listSharedLinksResult struct {
	Links []sharedLink `json:"links"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type memberInfo struct {
	Tag     string `json:".tag"`
	Profile struct {
		TeamMemberID string `json:"team_member_id"`
		Email        string `json:"email"`
	} `json:"profile"`
}

type namespace struct {
	Name          string `json:"name"`
	NamespaceID   string `json:"namespace_id"`
	NamespaceType struct {
		Tag string `json:".tag"`
	} `json:"namespace_type"`
}

type namespaceList struct {
	Namespaces []namespace `json:"namespaces"`
	Cursor     string      `json:"cursor"`
	HasMore    bool        `json:"has_more"`
}

// apiError is the body of a 409 endpoint error
type apiError struct {
	ErrorSummary string `json:"error_summary"`
}

func (e apiError) is(prefix string) bool {
	return strings.HasPrefix(e.ErrorSummary, prefix)
}
