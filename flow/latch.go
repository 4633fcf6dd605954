package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/gibson042/canonicaljson-go"
	"github.com/ztrue/tracerr"
	"sync"
)

type artifactMeta struct {
	Side   string `json:"side"`
	Mime   string `json:"mime"`
	Size   int    `json:"size"`
	Digest string `json:"digest"`
}

// artifactSetToken computes the idempotency token of an artifact set: the
// hash of the canonical JSON of each artifact's metadata. Two identical sets
// always produce the same token, so a set can be submitted at most once
// until the latch is explicitly reset by a user retry.
func artifactSetToken(artifacts []common_models.CapturedArtifact) (string, error) {
	metas := make([]artifactMeta, 0, len(artifacts))
	for _, artifact := range artifacts {
		mimeType, err := artifact.MimeType()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		data, err := artifact.Decode()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		digest := sha256.Sum256(data)
		metas = append(metas, artifactMeta{
			Side:   string(artifact.Side),
			Mime:   mimeType,
			Size:   len(data),
			Digest: hex.EncodeToString(digest[:]),
		})
	}
	encoded, err := canonicaljson.Marshal(metas)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// submitLatch is the one-shot guard preventing duplicate submission of the
// same artifact set. tryAcquire is synchronous, so it closes the window
// between rapid repeated triggers and the asynchronous submission start.
type submitLatch struct {
	lock  sync.Mutex
	token string
}

func (latch *submitLatch) tryAcquire(token string) bool {
	latch.lock.Lock()
	defer latch.lock.Unlock()
	if latch.token == token {
		return false
	}
	latch.token = token
	return true
}

func (latch *submitLatch) reset() {
	latch.lock.Lock()
	defer latch.lock.Unlock()
	latch.token = ""
}
