package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
)

// artifactSet holds the captured media of the currently active sub-flow. It
// lives exactly as long as one capture attempt: it is cleared on retry and
// when the sub-flow completes.
type artifactSet struct {
	front  *common_models.CapturedArtifact
	back   *common_models.CapturedArtifact
	selfie *common_models.CapturedArtifact
}

func (set *artifactSet) put(artifact common_models.CapturedArtifact) {
	switch artifact.Side {
	case common_models.ArtifactSideFront:
		set.front = &artifact
	case common_models.ArtifactSideBack:
		set.back = &artifact
	case common_models.ArtifactSideSelfie:
		set.selfie = &artifact
	}
}

func (set *artifactSet) get(side common_models.ArtifactSide) *common_models.CapturedArtifact {
	switch side {
	case common_models.ArtifactSideFront:
		return set.front
	case common_models.ArtifactSideBack:
		return set.back
	case common_models.ArtifactSideSelfie:
		return set.selfie
	}
	return nil
}

func (set *artifactSet) list() []common_models.CapturedArtifact {
	var artifacts []common_models.CapturedArtifact
	for _, artifact := range []*common_models.CapturedArtifact{set.front, set.back, set.selfie} {
		if artifact != nil {
			artifacts = append(artifacts, *artifact)
		}
	}
	return artifacts
}

func (set *artifactSet) clear() {
	set.front = nil
	set.back = nil
	set.selfie = nil
}
