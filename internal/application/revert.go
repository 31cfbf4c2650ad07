package application

import (
	"strings"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// FindRevert looks for a commit newer than target whose message marks it as
// a revert of target ('Revert "' prefix and "This reverts commit <sha>").
// commits may be in any order. ok is false when target is unknown or was
// not reverted.
func FindRevert(commits []model.PushCommit, targetSHA string) (model.RevertInfo, bool) {
	var target *model.PushCommit
	for i := range commits {
		if commits[i].SHA == targetSHA {
			target = &commits[i]
			break
		}
	}
	if target == nil {
		return model.RevertInfo{}, false
	}

	marker := "This reverts commit " + targetSHA
	for _, c := range commits {
		if !c.Timestamp.After(target.Timestamp) {
			continue
		}
		if strings.HasPrefix(c.Message, `Revert "`) && strings.Contains(c.Message, marker) {
			return model.RevertInfo{
				RevertSHA:     c.SHA,
				RevertMessage: c.Message,
				RevertedAt:    c.Timestamp,
				Delay:         c.Timestamp.Sub(target.Timestamp),
			}, true
		}
	}

	return model.RevertInfo{}, false
}
