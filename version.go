package hl7v2

import (
	"strconv"
	"strings"
)

// Version is an HL7 v2 version as it appears in MSH-12.
type Version string

// Supported HL7 versions.
const (
	V23  Version = "2.3"
	V231 Version = "2.3.1"
	V24  Version = "2.4"
	V25  Version = "2.5"
	V251 Version = "2.5.1"
	V26  Version = "2.6"
)

// String returns the version string.
func (v Version) String() string {
	return string(v)
}

// IsValid returns true if this is a supported HL7 version.
func (v Version) IsValid() bool {
	switch v {
	case V23, V231, V24, V25, V251, V26:
		return true
	default:
		return false
	}
}

// Versions returns the supported versions, oldest first.
func Versions() []Version {
	return []Version{V23, V231, V24, V25, V251, V26}
}

// Compare orders versions numerically part by part: -1 if v is older than
// other, 1 if newer, 0 if equal. Missing parts count as 0, so 2.5 equals
// 2.5.0.
func (v Version) Compare(other Version) int {
	a := strings.Split(string(v), ".")
	b := strings.Split(string(other), ".")
	for i := 0; i < len(a) || i < len(b); i++ {
		x, y := part(a, i), part(b, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func part(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
