package gallery

import (
	"embed"
	"path"

	"github.com/pkg/errors"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// schemaFor returns the DDL for the given database/sql driver name.
func schemaFor(driver string) (string, error) {
	data, err := schemaFiles.ReadFile(path.Join("schema", driver+".sql"))
	if err != nil {
		return "", errors.Wrapf(err, "no schema for driver %q", driver)
	}
	return string(data), nil
}
