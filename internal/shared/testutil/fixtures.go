// Package testutil provides fixtures and log capture for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Dataset fixtures for quarter 2025Q2. The reference and result files cover
// the same two instruments, so together they make the real estate PD page
// ready.
const (
	ReferenceFile = "instrumentreference_2025q2.csv"
	ResultFile    = "instrumentresult_2025q2.csv"

	ReferenceCSV = `instrumentIdentifier,portfolioIdentifier,reportingDate,borrowerState,collateralState,occupancyStatus,propertyStatus,assetClass
I-1,CRE,2025-06-30,TX,,Owner Occupied,,Commercial Real Estate
I-2,MF,2025-06-30,,CA,tenant,Multifamily,
`

	ResultCSV = `instrumentIdentifier,portfolioIdentifier,reportingDate,annualizedPDOneYear,lgdLifetime,amortizedCost
I-1,CRE,2025-06-30,0.02,0.4,1000
I-2,MF,2025-06-30,0.05,0.3,500
`
)

// WriteFile writes content to dir/name and returns the path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
