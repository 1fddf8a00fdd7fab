package workspace

// stubHome replaces the home directory lookup and returns the restore func.
func stubHome(fn func() (string, error)) func() {
	prev := userHomeDir
	userHomeDir = fn
	return func() { userHomeDir = prev }
}

// stubGOOS pins the platform used to pick the default workspace location.
func stubGOOS(goos string) func() {
	prev := getGOOS
	getGOOS = func() string { return goos }
	return func() { getGOOS = prev }
}
