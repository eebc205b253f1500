package version

// will be replaced with the release version when using goreleaser
var version = "development"

// UpdateEngineVersion returns the version of the running binary.
func UpdateEngineVersion() string {
	return version
}
