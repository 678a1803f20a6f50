package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter opens a GELF UDP writer to a Graylog input such as "graylog:12201".
// Each Write becomes one GELF message whose short message is the first line.
func NewGraylogWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("graylog writer %s: %w", address, err)
	}
	w.Facility = ServiceName
	return w, nil
}
