// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export_test

import (
	"fmt"
	"os"

	"github.com/jeranaias/threadchat/internal/export"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/storage"
)

// ExampleWrite exports a stored thread as JSON to stdout.
func ExampleWrite() {
	thread := &storage.Thread{
		ID:        "1740830400",
		Name:      "Notes",
		CreatedAt: "2025-03-01T12:00:00.000Z",
		UpdatedAt: "2025-03-01T12:00:00.000Z",
		Model:     "deepseek-r1:1.5b",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi", Timestamp: "2025-03-01T12:00:00.000Z"},
		},
	}

	if err := export.Write(os.Stdout, thread, export.FormatJSON, nil); err != nil {
		fmt.Println("export failed:", err)
	}
	// Output:
	// {
	//   "id": "1740830400",
	//   "name": "Notes",
	//   "created_at": "2025-03-01T12:00:00.000Z",
	//   "updated_at": "2025-03-01T12:00:00.000Z",
	//   "model": "deepseek-r1:1.5b",
	//   "messages": [
	//     {
	//       "role": "user",
	//       "content": "hi",
	//       "timestamp": "2025-03-01T12:00:00.000Z"
	//     }
	//   ]
	// }
}
