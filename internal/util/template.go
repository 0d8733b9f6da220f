package util

import (
	"fmt"
	"strings"
)

var periodPlaceholders = strings.NewReplacer("{:04d}", "%04d", "{:02d}", "%02d")

// FormatPeriod substitutes year and month into a template carrying
// "{:04d}" and "{:02d}" placeholders, in that order:
//
//	FormatPeriod("http://host/{:04d}-{:02d}.parquet", 2018, 2) == "http://host/2018-02.parquet"
func FormatPeriod(template string, year, month int) string {
	return fmt.Sprintf(periodPlaceholders.Replace(template), year, month)
}
