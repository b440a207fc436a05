package services

import (
	"strings"
	"time"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// RunTimestampFormat has second resolution; same-second runs of one function on one host collide
const RunTimestampFormat = "20060102-150405"

// GenerateName derives {functionName}_{hostname}_{timestamp}
func GenerateName(functionName, hostname string, now time.Time) string {
	return functionName + "_" + sanitizeHost(hostname) + "_" + now.UTC().Format(RunTimestampFormat)
}

// sanitizeHost keeps the name usable as a directory and queue key
func sanitizeHost(hostname string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '@', r == '-':
			return r
		default:
			return '-'
		}
	}, hostname)
}

type IdentityGenerator struct {
	now func() time.Time
}

func NewIdentityGenerator(now func() time.Time) *IdentityGenerator {
	if now == nil {
		now = time.Now
	}
	return &IdentityGenerator{now: now}
}

func (g *IdentityGenerator) Next(functionName, hostname string) models.RunIdentity {
	return models.RunIdentity{Name: GenerateName(functionName, hostname, g.now())}
}
