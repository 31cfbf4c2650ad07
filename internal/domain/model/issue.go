package model

// Issue is an open GitHub issue or pull request carrying a label.
type Issue struct {
	Number        int
	Author        string
	IsPullRequest bool
}
