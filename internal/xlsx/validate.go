package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxUploadBytes is the default upload limit.
const MaxUploadBytes = 10 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("file is empty")
	ErrCorrupt         = errors.New("file is not a readable workbook")
)

var allowedExt = map[string]bool{".xlsx": true, ".xls": true, ".xlsm": true}

// IsSpreadsheet reports whether filename has an accepted extension.
func IsSpreadsheet(filename string) bool {
	return allowedExt[strings.ToLower(filepath.Ext(filename))]
}

// Validate checks an upload before it is sent anywhere. Legacy .xls files
// are accepted on extension and size alone; OOXML files must open.
func Validate(filename string, data []byte, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return fmt.Errorf("%w: %s (accepted: .xlsx, .xls, .xlsm)", ErrUnsupportedType, filename)
	}
	if len(data) == 0 {
		return ErrEmpty
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d MB", ErrTooLarge, len(data), maxBytes/(1024*1024))
	}
	if ext == ".xls" {
		return nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return f.Close()
}
