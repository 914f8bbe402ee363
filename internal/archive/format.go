package archive

import (
	"fmt"
	"strings"

	errpkg "github.com/veranemoloko/model-fetcher/internal/errors"
)

// Format names an archive layout. The names follow the common
// make_archive vocabulary so clients can pass them through unchanged.
type Format string

const (
	Zip   Format = "zip"
	Tar   Format = "tar"
	GzTar Format = "gztar"
	BzTar Format = "bztar"
	XzTar Format = "xztar"
)

// DefaultFormat is used when no format is requested.
const DefaultFormat = Zip

var extensions = map[Format]string{
	Zip:   ".zip",
	Tar:   ".tar",
	GzTar: ".tar.gz",
	BzTar: ".tar.bz2",
	XzTar: ".tar.xz",
}

// Formats lists every supported format name.
func Formats() []string {
	return []string{string(Zip), string(Tar), string(GzTar), string(BzTar), string(XzTar)}
}

// ParseFormat validates a format name. An empty name selects DefaultFormat.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return DefaultFormat, nil
	}
	f := Format(strings.ToLower(s))
	if _, ok := extensions[f]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", errpkg.ErrUnsupportedFormat, s, strings.Join(Formats(), ", "))
	}
	return f, nil
}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return extensions[f]
}
