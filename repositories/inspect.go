package repositories

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders the store's keys for the Badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	namespace, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(namespace)

	switch namespace {
	case "msg":
		var dm diskMessage
		if err := json.Unmarshal(val, &dm); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		status := ""
		switch {
		case dm.Deleted:
			status = " [deleted]"
		case dm.EditedAt != nil:
			status = " [edited]"
		}
		row.Detail = fmt.Sprintf("%s from %s: %s%s", dm.Type, dm.SenderID, dm.Content, status)
	case "user":
		var du diskUser
		if err := json.Unmarshal(val, &du); err == nil {
			row.Detail = du.DisplayName
		}
	case "conv":
		var dc diskConversation
		if err := json.Unmarshal(val, &dc); err == nil {
			row.Detail = fmt.Sprintf("group=%t name=%q creator=%s", dc.IsGroup, dc.Name, dc.CreatorID)
		}
	case "cmsg", "direct":
		row.Detail = string(val)
	}
	return row
}
