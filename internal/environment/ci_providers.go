package environment

import "os"

// ciProvider probes a single CI platform. detect reports whether the
// platform's marker env var is present; tags extracts the platform's
// custom keys (repo, run id, branch, commit) when present.
type ciProvider struct {
	platform string
	detect   func() bool
	tags     func() map[string]string
}

// providers lists the recognized CI platforms in priority order; the first
// match wins, with the generic CI=true probe checked last.
var providers = []ciProvider{
	{
		platform: "GitHubActions",
		detect:   func() bool { return os.Getenv("GITHUB_ACTIONS") == "true" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("GITHUB_REPOSITORY"),
				"runId":  os.Getenv("GITHUB_RUN_ID"),
				"branch": os.Getenv("GITHUB_REF_NAME"),
				"commit": os.Getenv("GITHUB_SHA"),
			}
		},
	},
	{
		platform: "AzureDevOps",
		detect:   func() bool { return os.Getenv("TF_BUILD") != "" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("BUILD_REPOSITORY_URI"),
				"runId":  os.Getenv("BUILD_BUILDID"),
				"branch": os.Getenv("BUILD_SOURCEBRANCHNAME"),
				"commit": os.Getenv("BUILD_SOURCEVERSION"),
			}
		},
	},
	{
		platform: "Jenkins",
		detect:   func() bool { return os.Getenv("JENKINS_URL") != "" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("GIT_URL"),
				"runId":  os.Getenv("BUILD_NUMBER"),
				"branch": os.Getenv("GIT_BRANCH"),
				"commit": os.Getenv("GIT_COMMIT"),
			}
		},
	},
	{
		platform: "GitLabCI",
		detect:   func() bool { return os.Getenv("GITLAB_CI") == "true" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("CI_REPOSITORY_URL"),
				"runId":  os.Getenv("CI_PIPELINE_ID"),
				"branch": os.Getenv("CI_COMMIT_REF_NAME"),
				"commit": os.Getenv("CI_COMMIT_SHA"),
			}
		},
	},
	{
		platform: "CircleCI",
		detect:   func() bool { return os.Getenv("CIRCLECI") == "true" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("CIRCLE_REPOSITORY_URL"),
				"runId":  os.Getenv("CIRCLE_BUILD_NUM"),
				"branch": os.Getenv("CIRCLE_BRANCH"),
				"commit": os.Getenv("CIRCLE_SHA1"),
			}
		},
	},
	{
		platform: "Travis",
		detect:   func() bool { return os.Getenv("TRAVIS") == "true" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("TRAVIS_REPO_SLUG"),
				"runId":  os.Getenv("TRAVIS_BUILD_NUMBER"),
				"branch": os.Getenv("TRAVIS_BRANCH"),
				"commit": os.Getenv("TRAVIS_COMMIT"),
			}
		},
	},
	{
		platform: "TeamCity",
		detect:   func() bool { return os.Getenv("TEAMCITY_VERSION") != "" },
		tags: func() map[string]string {
			return map[string]string{
				"runId":  os.Getenv("BUILD_NUMBER"),
				"branch": os.Getenv("TEAMCITY_BUILD_BRANCH"),
			}
		},
	},
	{
		platform: "Bitbucket",
		detect:   func() bool { return os.Getenv("BITBUCKET_PIPELINE_UUID") != "" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("BITBUCKET_GIT_HTTP_ORIGIN"),
				"runId":  os.Getenv("BITBUCKET_BUILD_NUMBER"),
				"branch": os.Getenv("BITBUCKET_BRANCH"),
				"commit": os.Getenv("BITBUCKET_COMMIT"),
			}
		},
	},
	{
		platform: "AppVeyor",
		detect:   func() bool { return os.Getenv("APPVEYOR") == "True" },
		tags: func() map[string]string {
			return map[string]string{
				"repo":   os.Getenv("APPVEYOR_REPO_NAME"),
				"runId":  os.Getenv("APPVEYOR_BUILD_NUMBER"),
				"branch": os.Getenv("APPVEYOR_REPO_BRANCH"),
				"commit": os.Getenv("APPVEYOR_REPO_COMMIT"),
			}
		},
	},
	{
		platform: "Generic",
		detect:   func() bool { return os.Getenv("CI") == "true" },
		tags:     func() map[string]string { return map[string]string{} },
	},
}

// detectCI returns the custom CI tags, whether any CI platform was
// detected, and the matching platform name (first match wins).
func detectCI() (map[string]string, bool, string) {
	for _, p := range providers {
		if safeDetect(p.detect) {
			return safeTags(p.tags), true, p.platform
		}
	}
	return nil, false, ""
}

func safeDetect(f func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return f()
}

func safeTags(f func() map[string]string) (tags map[string]string) {
	defer func() {
		if recover() != nil {
			tags = map[string]string{}
		}
	}()
	tags = f()
	// Drop empty values so CustomProperties stays compact.
	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	return tags
}
