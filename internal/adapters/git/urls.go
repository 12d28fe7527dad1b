package git

import (
	"fmt"
	"regexp"
	"strings"
)

// Regular expressions for parsing Git remote URLs.
var (
	// httpsURLPattern matches HTTPS URLs like:
	// https://github.com/owner/repo.git
	// https://github.com/owner/repo
	httpsURLPattern = regexp.MustCompile(`^https?://(?:[^@/]+@)?([^/]+)/([^/]+)/([^/]+?)(?:\.git)?/?$`)

	// sshURLPattern matches SCP-style SSH URLs like:
	// git@github.com:owner/repo.git
	// git@github.com:owner/repo
	sshURLPattern = regexp.MustCompile(`^[^@/]+@([^:]+):([^/]+)/([^/]+?)(?:\.git)?/?$`)

	// sshSchemeURLPattern matches ssh:// URLs like:
	// ssh://git@github.com/owner/repo.git
	// ssh://git@github.com:22/owner/repo
	sshSchemeURLPattern = regexp.MustCompile(`^ssh://(?:[^@/]+@)?([^/:]+)(?::\d+)?/([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// parseRepoFromURL extracts host/owner/repo from a Git remote URL.
// Supports HTTPS, SCP-style SSH and ssh:// formats:
//   - https://github.com/owner/repo.git -> github.com/owner/repo
//   - git@github.com:owner/repo.git -> github.com/owner/repo
//   - ssh://git@github.com/owner/repo -> github.com/owner/repo
func parseRepoFromURL(url string) (string, error) {
	url = strings.TrimSpace(url)

	for _, pattern := range []*regexp.Regexp{httpsURLPattern, sshURLPattern, sshSchemeURLPattern} {
		if matches := pattern.FindStringSubmatch(url); len(matches) == 4 {
			return matches[1] + "/" + matches[2] + "/" + matches[3], nil
		}
	}

	return "", fmt.Errorf("unrecognized URL format: %s", url)
}

// cloneURLs returns the URLs tried, in order, to reach repo (host/owner/repo):
// HTTPS first, then SCP-style SSH.
func cloneURLs(repo string) []string {
	host, path, ok := strings.Cut(repo, "/")
	if !ok {
		return []string{"https://" + repo + ".git"}
	}
	return []string{
		"https://" + host + "/" + path + ".git",
		"git@" + host + ":" + path + ".git",
	}
}

func isSSHURL(url string) bool {
	return strings.HasPrefix(url, "ssh://") || sshURLPattern.MatchString(url)
}

func isHTTPURL(url string) bool {
	return strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")
}
