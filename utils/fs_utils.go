package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CreateFile will create a file at the given path and file name combination. If the path is the empty string, the
// file will be created in the current working directory
func CreateFile(path string, fileName string) (*os.File, error) {
	filePath := fileName
	if path != "" {
		if err := MakeDirectory(path); err != nil {
			return nil, err
		}
		filePath = filepath.Join(path, fileName)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return file, nil
}

// MakeDirectory creates a directory at the given path, including any parent directories which do not exist. It is an
// error for the path to name an existing file.
func MakeDirectory(dirToMake string) error {
	dirInfo, err := os.Stat(dirToMake)
	if os.IsNotExist(err) {
		return errors.WithStack(os.MkdirAll(dirToMake, 0755))
	} else if err != nil {
		return errors.WithStack(err)
	}

	if !dirInfo.IsDir() {
		return errors.Errorf("there is a file with the same name as %s", dirToMake)
	}
	return nil
}
