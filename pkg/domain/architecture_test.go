package domain

import (
	"testing"

	"graphmix/testutil"
)

// TestPublicPackagesStayIndependent keeps pkg/ importable by other modules:
// nothing under it may depend on internal packages, directly or not.
func TestPublicPackagesStayIndependent(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain errors are shared by every layer")
	testutil.AssertNoTransitiveDependency(t, "graphmix/pkg/...", testutil.ModuleInternalForbidden, "pkg/ must not depend on internal/")
}
