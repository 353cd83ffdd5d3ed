package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func randomScopeID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
