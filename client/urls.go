package client

// URLBuilder constructs the index URLs of a plugin release.
type URLBuilder interface {
	// Project is the human-readable project page.
	Project(name, version string) string
	// Release is the JSON metadata document.
	Release(name, version string) string
	// Files is the simple index page listing downloadable files.
	Files(name string) string
	PURL(name, version string) string
}

// URLFuncs implements URLBuilder with optional functions. A nil function
// yields an empty URL.
type URLFuncs struct {
	ProjectFn func(name, version string) string
	ReleaseFn func(name, version string) string
	FilesFn   func(name string) string
	PURLFn    func(name, version string) string
}

func (u *URLFuncs) Project(name, version string) string {
	if u.ProjectFn == nil {
		return ""
	}
	return u.ProjectFn(name, version)
}

func (u *URLFuncs) Release(name, version string) string {
	if u.ReleaseFn == nil {
		return ""
	}
	return u.ReleaseFn(name, version)
}

func (u *URLFuncs) Files(name string) string {
	if u.FilesFn == nil {
		return ""
	}
	return u.FilesFn(name)
}

func (u *URLFuncs) PURL(name, version string) string {
	if u.PURLFn == nil {
		return ""
	}
	return u.PURLFn(name, version)
}

// BuildURLs returns the non-empty URLs of a release keyed by "project",
// "release", "files" and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	all := map[string]string{
		"project": urls.Project(name, version),
		"release": urls.Release(name, version),
		"files":   urls.Files(name),
		"purl":    urls.PURL(name, version),
	}
	result := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			result[k] = v
		}
	}
	return result
}
