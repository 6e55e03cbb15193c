package mysql

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// buildStagingDDL constructs the CREATE TABLE statement for the input
// relation: a TID surrogate key plus k textual columns. It is validated
// against the TiDB parser before being handed to the driver, the same
// "build DDL text, then parse it" shape the teacher uses in reverse
// (internal/parser/mysql parsed existing dumps; here the DDL is generated
// first and parsed as a correctness check before execution).
func buildStagingDDL(table string, k int) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", quoteIdent(table))
	fmt.Fprintf(&sb, "  tid BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY")
	for i := 0; i < k; i++ {
		fmt.Fprintf(&sb, ",\n  %s %s", quoteIdent(colName(i)), stagingColType)
	}
	sb.WriteString("\n)")
	ddl := sb.String()

	if _, _, err := parser.New().Parse(ddl, "", ""); err != nil {
		return "", fmt.Errorf("mysql store: generated staging DDL failed to parse: %w", err)
	}
	return ddl, nil
}
