package models

import (
	"encoding/json"
	"fmt"
	"math/bits"
)

// Permissions is the capability set of a role.
type Permissions uint8

const (
	PermAdmin Permissions = 1 << iota
	PermManageServer
	PermManageChannels
)

var permissionTags = []struct {
	perm Permissions
	tag  string
}{
	{PermAdmin, "ADMIN"},
	{PermManageServer, "MANAGE_SERVER"},
	{PermManageChannels, "MANAGE_CHANNELS"},
}

// Has reports whether p grants want. ADMIN grants everything.
func (p Permissions) Has(want Permissions) bool {
	if p&PermAdmin != 0 {
		return true
	}
	return p&want == want
}

func (p Permissions) Tags() []string {
	tags := make([]string, 0, bits.OnesCount8(uint8(p)))
	for _, pt := range permissionTags {
		if p&pt.perm != 0 {
			tags = append(tags, pt.tag)
		}
	}
	return tags
}

func ParsePermission(tag string) (Permissions, error) {
	for _, pt := range permissionTags {
		if pt.tag == tag {
			return pt.perm, nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", tag)
}

func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Tags())
}

func (p *Permissions) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}

	var result Permissions
	for _, tag := range tags {
		perm, err := ParsePermission(tag)
		if err != nil {
			return err
		}
		result |= perm
	}
	*p = result
	return nil
}

func (p Permissions) String() string {
	return fmt.Sprint(p.Tags())
}
