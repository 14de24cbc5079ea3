package tools

import (
	"encoding/base64"
	"encoding/json"

	"github.com/raphaelgruber/narra-go/internal/db"
)

type cursorPayload struct {
	Offset int `json:"offset"`
}

// EncodeCursor renders a pagination offset as an opaque cursor.
func EncodeCursor(offset int) string {
	data, _ := json.Marshal(cursorPayload{Offset: offset})
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque cursor back to its offset. Empty cursors
// mean offset zero; malformed ones are a validation error.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, db.Validationf("malformed cursor: %v", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, db.Validationf("malformed cursor: %v", err)
	}
	if payload.Offset < 0 {
		return 0, db.Validationf("malformed cursor: negative offset")
	}
	return payload.Offset, nil
}
