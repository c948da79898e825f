package roledef

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Status represents the lifecycle state of a role definition.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// RoleDefinition is a named, versioned unit of role configuration.
//
// SQLCommands is an ordered sequence of idempotent statements; order
// matters because a role must exist before grants reference it.
type RoleDefinition struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Checksum    string    `json:"checksum"`
	SQLCommands []string  `json:"sql_commands"`
	Inherits    []string  `json:"inherits,omitempty"`
	NativeRoles []string  `json:"native_roles,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ComputeChecksum returns the SHA-256 hash of the ordered command list.
// Reordering commands changes the checksum: execution order is part of
// the definition's contract. Each command is length-prefixed so the
// framing is unambiguous and distinct lists cannot collide.
func ComputeChecksum(commands []string) string {
	h := sha256.New()
	for _, command := range commands {
		fmt.Fprintf(h, "%d:", len(command))
		h.Write([]byte(command))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SemVer parses the definition's version string.
func (d RoleDefinition) SemVer() (*semver.Version, error) {
	return semver.NewVersion(d.Version)
}

// IsOutdated reports whether this definition differs from another by
// version or checksum.
func (d RoleDefinition) IsOutdated(other RoleDefinition) bool {
	return d.Version != other.Version || d.Checksum != other.Checksum
}

// IsNewerThan compares versions semantically. Unparseable versions
// compare as not newer.
func (d RoleDefinition) IsNewerThan(other RoleDefinition) bool {
	dv, err := d.SemVer()
	if err != nil {
		return false
	}
	ov, err := other.SemVer()
	if err != nil {
		return false
	}
	return dv.GreaterThan(ov)
}
