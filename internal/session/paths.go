package session

import (
	"fmt"
	"path"
	"strings"
)

// Artifact object names emitted under the analysis prefix.
const (
	ArtifactRawJSON       = "behaviors_raw.json"
	ArtifactValidatedJSON = "behaviors_validated.json"
	ArtifactFinalJSON     = "behaviors_final.json"
	ArtifactVideo         = "video_with_behaviors.mp4"
)

// Paths derives object keys from the configured storage layout:
//
//	source videos  <videosPrefix>/<icdKey>/<epoch>-<safeName>
//	sessions       <sessionsPrefix>/<icdKey>/<epoch>.json
//	artifacts      <analysisPrefix>/<icdKey>/<epoch>/<artifact>
type Paths struct {
	VideosPrefix   string
	SessionsPrefix string
	AnalysisPrefix string
}

// SessionKey returns the canonical session object key.
func (p Paths) SessionKey(icdKey, uploadEpoch string) string {
	return path.Join(p.SessionsPrefix, icdKey, uploadEpoch+".json")
}

// SessionDir returns the prefix holding all session records for an icdKey.
func (p Paths) SessionDir(icdKey string) string {
	return path.Join(p.SessionsPrefix, icdKey) + "/"
}

// ArtifactKey returns the key of one artifact for a session.
func (p Paths) ArtifactKey(icdKey, uploadEpoch, artifact string) string {
	return path.Join(p.AnalysisPrefix, icdKey, uploadEpoch, artifact)
}

// InVideosScope reports whether an object key lies under the child-videos prefix.
func (p Paths) InVideosScope(objectName string) bool {
	return strings.HasPrefix(objectName, p.VideosPrefix+"/")
}

// ParseObjectName extracts (icdKey, uploadEpoch) from a source-video object
// key. The icdKey is the path component after the videos prefix; the upload
// epoch is the leading numeric segment of the filename, empty when the
// filename carries none.
func (p Paths) ParseObjectName(objectName string) (icdKey, uploadEpoch string, err error) {
	if !p.InVideosScope(objectName) {
		return "", "", fmt.Errorf("object %q is not under the videos prefix %q", objectName, p.VideosPrefix)
	}
	rest := strings.TrimPrefix(objectName, p.VideosPrefix+"/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("object %q does not match <videosPrefix>/<icdKey>/<file>", objectName)
	}
	icdKey = parts[0]

	filename := path.Base(parts[1])
	uploadEpoch = leadingDigits(filename)
	return icdKey, uploadEpoch, nil
}

// leadingDigits returns the maximal numeric prefix of s.
func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
