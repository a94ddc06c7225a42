package svg

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DecodeStyle reads YAML style overrides on top of DefaultStyle. Keys that
// are absent keep their default.
func DecodeStyle(r io.Reader) (Style, error) {
	style := DefaultStyle()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&style); err != nil && err != io.EOF {
		return Style{}, eris.Wrap(err, "svg: decode style")
	}
	return style, nil
}

// LoadStyle reads style overrides from a YAML file.
func LoadStyle(path string) (Style, error) {
	f, err := os.Open(path)
	if err != nil {
		return Style{}, eris.Wrapf(err, "svg: open style %s", path)
	}
	defer f.Close() //nolint:errcheck

	return DecodeStyle(f)
}
