// Package ingest turns a single uploaded file into stored resource data:
// archives are kept as the data file and unpacked into a members listing,
// recognised data files are stored as-is, anything else is rejected.
package ingest

import (
	"path"
	"strings"

	"scodata/pkg/domain"
)

// Kind classifies an upload.
type Kind int

const (
	// KindData is a recognised single data file, stored without extraction.
	KindData Kind = iota + 1
	// KindArchive is a tar-family archive whose regular files become members.
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Policy lists the recognised suffixes. Matching is case-insensitive and the
// longest matching suffix wins.
type Policy struct {
	ArchiveSuffixes []string `yaml:"archive_suffixes"`
	DataSuffixes    []string `yaml:"data_suffixes"`
}

// DefaultArchiveSuffixes are the tar-family suffixes accepted by default.
var DefaultArchiveSuffixes = []string{".tar", ".tar.gz", ".tgz"}

// DefaultDataSuffixes are the functional-data suffixes accepted by default.
var DefaultDataSuffixes = []string{".nii", ".nii.gz", ".mgz", ".mgh"}

// DefaultPolicy returns the default functional-data policy.
func DefaultPolicy() Policy {
	return Policy{
		ArchiveSuffixes: append([]string(nil), DefaultArchiveSuffixes...),
		DataSuffixes:    append([]string(nil), DefaultDataSuffixes...),
	}
}

// ArchiveOnly returns a policy that accepts the default archives and nothing else.
func ArchiveOnly() Policy {
	return Policy{ArchiveSuffixes: append([]string(nil), DefaultArchiveSuffixes...)}
}

// Classify returns the kind and matched suffix for filename.
func (p Policy) Classify(filename string) (Kind, string, error) {
	name := strings.ToLower(filename)
	var (
		kind Kind
		best string
	)
	consider := func(suffixes []string, k Kind) {
		for _, s := range suffixes {
			s = normalizeSuffix(s)
			if s != "" && strings.HasSuffix(name, s) && len(s) > len(best) {
				best, kind = s, k
			}
		}
	}
	consider(p.ArchiveSuffixes, KindArchive)
	consider(p.DataSuffixes, KindData)
	if kind == 0 {
		return 0, "", domain.NewError(domain.ErrUnsupportedFileType, "ingest", domain.Ref{}, filename)
	}
	return kind, best, nil
}

func normalizeSuffix(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

// cleanFilename reduces an upload name to its final path element.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
