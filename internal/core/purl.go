package core

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/purl"
	packageurl "github.com/package-url/packageurl-go"
)

// PURL returns the package URL of the record, e.g. "pkg:pypi/foo-bar@1.0".
func (r Record) PURL() string {
	return packageurl.NewPackageURL(packageurl.TypePyPi, "", NormalizeName(r.Name), r.Version, nil, "").ToString()
}

// ResolveName returns the package name a command argument refers to. An
// argument starting with "pkg:" must be a pypi package URL; its version, if
// any, is ignored. Anything else is already a name.
func ResolveName(arg string) (string, error) {
	if !strings.HasPrefix(arg, "pkg:") {
		return arg, nil
	}
	p, err := purl.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("parsing package URL %q: %w", arg, err)
	}
	if p.Type != packageurl.TypePyPi {
		return "", fmt.Errorf("unsupported package URL type %q in %q", p.Type, arg)
	}
	return p.Name, nil
}
