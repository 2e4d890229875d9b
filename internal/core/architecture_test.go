package core

import (
	"testing"

	"scodata/testutil"
)

func TestServiceUsesStoreContractsOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.Any(testutil.InfraImportForbidden, testutil.StorageSDKImportForbidden),
		"core reaches storage through internal/metadata and internal/blob")
}
