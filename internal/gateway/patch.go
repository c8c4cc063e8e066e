package gateway

import (
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/sessiondb"
)

func dbPatchDisplayName(name string) sessiondb.Patch {
	return sessiondb.Patch{DisplayName: &name}
}

func registryPatchDisplayName(name string) registry.Patch {
	return registry.Patch{DisplayName: &name}
}

func registryPatchIsPinned(v bool) registry.Patch {
	return registry.Patch{IsPinned: &v}
}
