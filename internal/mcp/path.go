package mcp

import (
	"fmt"
	"strings"
)

// JoinPath builds the server-relative path for an owner's file.
func JoinPath(ownerID, filename string) string {
	return ownerID + "/" + filename
}

// ParsePath splits a server-relative path of the form owner/filename.
func ParsePath(remotePath string) (ownerID, filename string, err error) {
	remotePath = strings.Trim(strings.TrimSpace(remotePath), "/")
	ownerID, filename, ok := strings.Cut(remotePath, "/")
	if !ok || !validSegment(ownerID) || !validSegment(filename) || strings.Contains(filename, "/") {
		return "", "", fmt.Errorf("invalid file path %q: expected owner/filename", remotePath)
	}
	return ownerID, filename, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.Contains(s, "\\")
}
