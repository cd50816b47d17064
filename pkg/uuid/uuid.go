// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates the primary keys of every gateway table.

Keys are UUIDv7 so they sort by creation time and append to B-tree indexes.
Session ids are not UUIDs; they are 64 hex characters from [sec.GenerateSecureToken].
*/
package uuid

import "github.com/google/uuid"

// New returns a UUIDv7 string. It panics only if the system entropy source fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}
	return id.String()
}
