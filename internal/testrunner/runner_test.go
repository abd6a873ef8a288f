package testrunner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"starmcp-go/internal/capability"
	"starmcp-go/internal/scripthost"
)

const threeCaseFixture = `
def test_one():
    testing.eq(1 + 1, 2)

def test_two():
    testing.eq("a", "a")

def test_three():
    testing.fail("boom")
`

// TestRunTallySummarizesPassAndFail mirrors scenario S6: three test_*
// functions, two passing and one failing via testing.fail, tallying
// Total: 3 | Passed: 2 | Failed: 1.
func TestRunTallySummarizesPassAndFail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo_test.star")
	if err := os.WriteFile(path, []byte(threeCaseFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	host := scripthost.New(capability.TestModules())
	var out bytes.Buffer

	summary, files, err := Run(dir, host, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 3 || summary.Passed != 2 || summary.Failed != 1 {
		t.Fatalf("got %+v, want Total:3 Passed:2 Failed:1", summary)
	}
	if len(files) != 1 || len(files[0].Cases) != 3 {
		t.Fatalf("got %+v, want one file with three cases", files)
	}
	if !bytes.Contains(out.Bytes(), []byte("Total: 3 | Passed: 2 | Failed: 1")) {
		t.Errorf("output %q missing expected summary line", out.String())
	}
}

func TestRunIgnoresNonTestFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not_a_test.star"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	host := scripthost.New(capability.TestModules())
	var out bytes.Buffer
	summary, _, err := Run(dir, host, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("got %+v, want zero cases for a directory with no *_test.star files", summary)
	}
}
