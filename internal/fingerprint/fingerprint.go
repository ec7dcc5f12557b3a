// Package fingerprint computes the deterministic identity hash used to
// match findings to observations across scans.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/observatory-sec/observatory/internal/models"
)

// Origin carries the subset of fields that contribute to identity.
type Origin struct {
	Title            string
	ComponentName    string
	ComponentVersion string
	DockerImageName  string
	EndpointURL      string
	ServiceName      string
	SourceFile       string
	SourceLineStart  *int
	SourceLineEnd    *int
}

// ForFinding computes the fingerprint of an incoming finding.
func ForFinding(f *models.Finding) string {
	return Hash(Origin{
		Title:            f.Title,
		ComponentName:    f.ComponentName,
		ComponentVersion: f.ComponentVersion,
		DockerImageName:  f.DockerImageName,
		EndpointURL:      f.EndpointURL,
		ServiceName:      f.ServiceName,
		SourceFile:       f.SourceFile,
		SourceLineStart:  f.SourceLineStart,
		SourceLineEnd:    f.SourceLineEnd,
	})
}

// ForObservation computes the fingerprint of a stored observation.
func ForObservation(o *models.Observation) string {
	return Hash(Origin{
		Title:            o.Title,
		ComponentName:    o.ComponentName,
		ComponentVersion: o.ComponentVersion,
		DockerImageName:  o.DockerImageName,
		EndpointURL:      o.EndpointURL,
		ServiceName:      o.ServiceName,
		SourceFile:       o.SourceFile,
		SourceLineStart:  o.SourceLineStart,
		SourceLineEnd:    o.SourceLineEnd,
	})
}

// Hash concatenates the first populated origin group in fixed precedence
// (component, docker image, endpoint, service, source location, title
// alone) and digests it with SHA-256. Lower-precedence fields never enter
// the hash, so two records differing only in an unused field hash
// identically. Deliberately coarse: residual over-merging is handled by
// the potential duplicate detector and manual marking.
func Hash(o Origin) string {
	key := o.Title

	switch {
	case o.ComponentName != "":
		key += "|" + o.ComponentName + ":" + o.ComponentVersion
	case o.DockerImageName != "":
		key += "|" + stripImageTag(o.DockerImageName)
	case o.EndpointURL != "":
		key += "|" + o.EndpointURL
	case o.ServiceName != "":
		key += "|" + o.ServiceName
	case o.SourceFile != "":
		key += "|" + o.SourceFile
		if o.SourceLineStart != nil {
			key += "|" + strconv.Itoa(*o.SourceLineStart)
		}
		if o.SourceLineEnd != nil {
			key += "|" + strconv.Itoa(*o.SourceLineEnd)
		}
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// stripImageTag drops the tag from an image reference. The colon only
// counts as a tag separator when it follows the last path segment, so
// registry ports ("registry:5000/app") survive.
func stripImageTag(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[:colon]
	}
	return image
}
