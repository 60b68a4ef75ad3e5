package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Upload limits shared by the intake API and the page that calls it.
const (
	SlotCount          = 3
	MaxFileNameLength  = 255
	DefaultUploadBytes = 200 * 1024 * 1024
)

// Slot parses a slot path parameter. The message is empty when valid.
func Slot(raw string) (int, string) {
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < 0 || slot >= SlotCount {
		return 0, fmt.Sprintf("slot must be between 0 and %d", SlotCount-1)
	}
	return slot, ""
}

func ContentType(ct string) string {
	if !strings.HasPrefix(ct, "video/") {
		return "file must be a video"
	}
	return ""
}

func FileName(name string) string {
	if name == "" {
		return "file name is required"
	}
	if len(name) > MaxFileNameLength {
		return fmt.Sprintf("file name must be %d characters or fewer", MaxFileNameLength)
	}
	return ""
}

func UploadSize(size, max int64) string {
	if size <= 0 {
		return "file is empty"
	}
	if max > 0 && size > max {
		return fmt.Sprintf("file must be %d MB or smaller", max/(1024*1024))
	}
	return ""
}

// Limits returns the upload limits for the /api/limits endpoint.
func Limits(maxUploadBytes int64, maxDurationSeconds int) map[string]int64 {
	return map[string]int64{
		"slots":              SlotCount,
		"maxUploadBytes":     maxUploadBytes,
		"maxDurationSeconds": int64(maxDurationSeconds),
		"fileNameLength":     MaxFileNameLength,
	}
}
