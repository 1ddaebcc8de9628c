package core

import (
	"testing"

	"capresearch/testutil"
)

func TestCoreDoesNotImportAdapters(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "service layer must not depend on HTTP or CLI surfaces")
}
